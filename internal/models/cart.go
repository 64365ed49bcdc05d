package models

import (
	"container/list"
	"encoding/json"
)

// Cart is an order-preserving set of bookable items keyed by id. Membership
// and removal are O(1); iteration follows insertion order.
type Cart struct {
	order *list.List
	index map[string]*list.Element
}

func NewCart(items ...BookableItem) *Cart {
	c := &Cart{}
	for _, item := range items {
		c.Add(item)
	}
	return c
}

func (c *Cart) init() {
	if c.order == nil {
		c.order = list.New()
		c.index = make(map[string]*list.Element)
	}
}

// Add appends the item unless an item with the same id is already present.
func (c *Cart) Add(item BookableItem) bool {
	c.init()
	if _, ok := c.index[item.ID]; ok {
		return false
	}
	c.index[item.ID] = c.order.PushBack(item)
	return true
}

func (c *Cart) Remove(id string) bool {
	if c == nil || c.order == nil {
		return false
	}
	el, ok := c.index[id]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.index, id)
	return true
}

func (c *Cart) Contains(id string) bool {
	if c == nil || c.index == nil {
		return false
	}
	_, ok := c.index[id]
	return ok
}

func (c *Cart) Len() int {
	if c == nil || c.order == nil {
		return 0
	}
	return c.order.Len()
}

// Items returns a copy of the cart contents in insertion order.
func (c *Cart) Items() []BookableItem {
	if c == nil || c.order == nil {
		return nil
	}
	out := make([]BookableItem, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(BookableItem))
	}
	return out
}

func (c *Cart) IDs() []string {
	items := c.Items()
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func (c *Cart) Clear() {
	c.order = nil
	c.index = nil
}

// Reconcile refreshes every cart entry from the catalog snapshot, keeping its
// position, and drops entries the snapshot no longer contains. The dropped
// items are returned so callers can tell the customer.
func (c *Cart) Reconcile(snapshot []BookableItem) []BookableItem {
	if c == nil || c.order == nil {
		return nil
	}
	fresh := make(map[string]BookableItem, len(snapshot))
	for _, item := range snapshot {
		fresh[item.ID] = item
	}

	var removed []BookableItem
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		current := el.Value.(BookableItem)
		if item, ok := fresh[current.ID]; ok {
			el.Value = item
		} else {
			removed = append(removed, current)
			c.order.Remove(el)
			delete(c.index, current.ID)
		}
		el = next
	}
	return removed
}

func (c *Cart) MarshalJSON() ([]byte, error) {
	items := c.Items()
	if items == nil {
		items = []BookableItem{}
	}
	return json.Marshal(items)
}

func (c *Cart) UnmarshalJSON(data []byte) error {
	var items []BookableItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	c.Clear()
	for _, item := range items {
		c.Add(item)
	}
	return nil
}
