package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Field names of a line item inside a partition document. The legacy names are accepted on read only.
const (
	fieldIdentity   = "identity"
	fieldQuantity   = "quantity"
	fieldUnitPrice  = "unitPrice"
	fieldStockLimit = "stockLimit"
	fieldName       = "name"
	fieldImage      = "image"

	legacyID    = "id"
	legacyAltID = "_id"
	legacyPrice = "price"
	legacyStock = "stock"
)

var knownFields = []string{
	fieldIdentity, fieldQuantity, fieldUnitPrice, fieldStockLimit, fieldName, fieldImage,
	legacyID, legacyAltID, legacyPrice, legacyStock,
}

type document struct {
	Items []json.RawMessage `json:"items"`
}

// Encode serializes items into the partition document format. Opaque attributes are flattened next to the known
// fields; known fields win on collision.
func Encode(items []LineItem) ([]byte, error) {
	out := struct {
		Items []map[string]any `json:"items"`
	}{Items: make([]map[string]any, 0, len(items))}

	for _, item := range items {
		m := make(map[string]any, len(item.Attributes)+6)
		for k, v := range item.Attributes {
			m[k] = v
		}
		m[fieldIdentity] = item.Identity
		m[fieldQuantity] = item.Quantity
		m[fieldUnitPrice] = json.Number(item.UnitPrice.String())
		if item.StockLimit != nil {
			m[fieldStockLimit] = *item.StockLimit
		}
		if item.Name != "" {
			m[fieldName] = item.Name
		}
		if item.Image != "" {
			m[fieldImage] = item.Image
		}
		out.Items = append(out.Items, m)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart: %w", err)
	}
	return data, nil
}

// Decode parses a partition document. Empty input is an empty cart. A document that is not valid JSON returns an
// error; individual items that cannot be used (not an object, no identity, quantity below one) are skipped.
// Prices that fail validation are coerced to zero and duplicate identities are merged into their first occurrence.
func Decode(data []byte) ([]LineItem, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []LineItem{}, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}

	state := State{Items: make([]LineItem, 0, len(doc.Items))}
	for _, raw := range doc.Items {
		item, ok := decodeItem(raw)
		if !ok {
			continue
		}
		if i := state.index(item.Identity); i >= 0 {
			state.Items[i].Quantity += item.Quantity
			continue
		}
		state.Items = append(state.Items, item)
	}
	return state.Items, nil
}

func decodeItem(raw json.RawMessage) (LineItem, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return LineItem{}, false
	}

	identity := decodeString(fields[fieldIdentity])
	if identity == "" {
		identity = ResolveIdentity(decodeString(fields[legacyID]), decodeString(fields[legacyAltID]))
	}
	if identity == "" {
		return LineItem{}, false
	}
	quantity, ok := decodeInt(fields[fieldQuantity])
	if !ok || quantity < 1 {
		return LineItem{}, false
	}

	priceRaw, found := fields[fieldUnitPrice]
	if !found {
		priceRaw = fields[legacyPrice]
	}
	stockRaw, found := fields[fieldStockLimit]
	if !found {
		stockRaw = fields[legacyStock]
	}

	item := LineItem{
		Identity:  identity,
		Quantity:  quantity,
		UnitPrice: coercePrice(decodeAny(priceRaw)),
		Name:      decodeString(fields[fieldName]),
		Image:     decodeString(fields[fieldImage]),
	}
	if limit, ok := decodeInt(stockRaw); ok {
		item.StockLimit = normalizeStock(&limit)
	}

	for _, k := range knownFields {
		delete(fields, k)
	}
	if len(fields) > 0 {
		item.Attributes = make(map[string]any, len(fields))
		for k, v := range fields {
			item.Attributes[k] = decodeAny(v)
		}
	}
	return item, true
}

// decodeAny unmarshals raw keeping numbers as json.Number so they survive a round trip untouched.
func decodeAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// decodeString accepts strings and numbers (legacy numeric ids).
func decodeString(raw json.RawMessage) string {
	switch v := decodeAny(raw).(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

// decodeInt accepts integral numbers and numeric strings.
func decodeInt(raw json.RawMessage) (int, bool) {
	var s string
	switch v := decodeAny(raw).(type) {
	case json.Number:
		s = v.String()
	case string:
		s = v
	default:
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
