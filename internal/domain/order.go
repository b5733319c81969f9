package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Well-known order keys; everything else a client sends is kept verbatim.
const (
	keyID          = "id"
	keyUserID      = "userId"
	keyStatus      = "status"
	keyDepositPaid = "depositPaid"
	keyFullPaid    = "fullPaid"
)

var (
	// ErrInvalidOrder is returned when a booking payload is not a JSON object
	ErrInvalidOrder = errors.New("booking payload must be a JSON object")
	// ErrEmptyOrderID is returned when an order id is missing
	ErrEmptyOrderID = errors.New("order id is empty")
)

// OrderID is a client supplied order identifier of any JSON type, held as
// compact JSON text. Two ids are equal when their compact encodings are
// equal, so 1 and "1" are different orders.
type OrderID string

// ParseOrderID compacts raw JSON into an OrderID
func ParseOrderID(raw json.RawMessage) (OrderID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", ErrEmptyOrderID
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return OrderID(buf.String()), nil
}

// String returns the JSON text of the id
func (id OrderID) String() string {
	return string(id)
}

// MarshalJSON emits the id exactly as the client sent it
func (id OrderID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	return []byte(id), nil
}

// UnmarshalJSON accepts any JSON value
func (id *OrderID) UnmarshalJSON(data []byte) error {
	parsed, err := ParseOrderID(data)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Order is a booking. Only the fields the server acts on are typed; the
// rest of the client payload round-trips through Fields untouched. A
// status or payment flag that is not a string or boolean (null included)
// is kept in Fields as sent.
type Order struct {
	ID          OrderID
	UserID      json.RawMessage
	Status      *string
	DepositPaid *bool
	FullPaid    *bool
	Fields      map[string]json.RawMessage

	// keys is the key order of the payload; keys added later go last
	keys []string
}

// UnmarshalJSON splits a booking payload into typed and opaque fields,
// remembering the order the keys arrived in
func (o *Order) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return ErrInvalidOrder
	}

	*o = Order{Fields: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return ErrInvalidOrder
		}
		key, ok := tok.(string)
		if !ok {
			return ErrInvalidOrder
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return ErrInvalidOrder
		}
		if err := o.set(key, value); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return ErrInvalidOrder
	}
	return nil
}

func (o *Order) set(key string, value json.RawMessage) error {
	switch key {
	case keyID:
		id, err := ParseOrderID(value)
		if err != nil {
			return err
		}
		o.ID = id
	case keyUserID:
		o.UserID = append(json.RawMessage(nil), value...)
	case keyStatus:
		var s string
		if !isNull(value) && json.Unmarshal(value, &s) == nil {
			o.SetStatus(s)
			return nil
		}
		o.Status = nil
		o.setField(key, value)
	case keyDepositPaid, keyFullPaid:
		o.setFlag(key, value)
	default:
		o.setField(key, value)
	}
	o.touch(key)
	return nil
}

func (o *Order) setField(key string, value json.RawMessage) {
	if o.Fields == nil {
		o.Fields = make(map[string]json.RawMessage)
	}
	o.Fields[key] = append(json.RawMessage(nil), value...)
}

// setFlag stores a boolean in the typed flag and anything else, null
// included, in Fields
func (o *Order) setFlag(key string, value json.RawMessage) {
	flag := &o.DepositPaid
	if key == keyFullPaid {
		flag = &o.FullPaid
	}

	var b bool
	if !isNull(value) && json.Unmarshal(value, &b) == nil {
		*flag = &b
		delete(o.Fields, key)
	} else {
		*flag = nil
		o.setField(key, value)
	}
	o.touch(key)
}

func (o *Order) touch(key string) {
	for _, k := range o.keys {
		if k == key {
			return
		}
	}
	o.keys = append(o.keys, key)
}

func (o *Order) has(key string) bool {
	switch key {
	case keyID:
		return o.ID != ""
	case keyUserID:
		return len(o.UserID) > 0
	case keyStatus:
		if o.Status != nil {
			return true
		}
	case keyDepositPaid:
		if o.DepositPaid != nil {
			return true
		}
	case keyFullPaid:
		if o.FullPaid != nil {
			return true
		}
	}
	_, ok := o.Fields[key]
	return ok
}

// value returns the JSON of one key; callers check has first
func (o *Order) value(key string) (json.RawMessage, error) {
	switch {
	case key == keyID:
		return json.RawMessage(o.ID), nil
	case key == keyUserID:
		return o.UserID, nil
	case key == keyStatus && o.Status != nil:
		return json.Marshal(*o.Status)
	case key == keyDepositPaid && o.DepositPaid != nil:
		return json.RawMessage(strconv.FormatBool(*o.DepositPaid)), nil
	case key == keyFullPaid && o.FullPaid != nil:
		return json.RawMessage(strconv.FormatBool(*o.FullPaid)), nil
	}
	return o.Fields[key], nil
}

// keyOrder lists the keys to emit: payload order first, then keys set on
// an order that was never decoded
func (o *Order) keyOrder() []string {
	seen := make(map[string]bool, len(o.keys)+len(o.Fields)+5)
	out := make([]string, 0, len(o.keys)+len(o.Fields)+5)
	add := func(k string) {
		if !seen[k] && o.has(k) {
			seen[k] = true
			out = append(out, k)
		}
	}

	for _, k := range o.keys {
		add(k)
	}
	add(keyID)
	add(keyUserID)
	rest := make([]string, 0, len(o.Fields))
	for k := range o.Fields {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		add(k)
	}
	add(keyStatus)
	add(keyDepositPaid)
	add(keyFullPaid)
	return out
}

// MarshalJSON writes the order back with its keys in payload order
func (o Order) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keyOrder() {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')

		v, err := o.value(k)
		if err != nil {
			return nil, err
		}
		if err := json.Compact(&buf, v); err != nil {
			return nil, fmt.Errorf("order field %s: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// OwnerID resolves userId to a user id. Only a non-zero integral JSON
// number qualifies; strings, null, and booleans do not.
func (o *Order) OwnerID() (int64, bool) {
	if len(o.UserID) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(o.UserID, &f); err != nil || isNull(o.UserID) {
		return 0, false
	}
	if f == 0 || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// SetStatus overwrites the status label
func (o *Order) SetStatus(status string) {
	o.Status = &status
	delete(o.Fields, keyStatus)
	o.touch(keyStatus)
}

// ApplyPayment overwrites each flag present in update with the value sent.
// An absent flag is left alone.
func (o *Order) ApplyPayment(update PaymentUpdate) {
	if update.DepositPaid != nil {
		o.setFlag(keyDepositPaid, update.DepositPaid)
	}
	if update.FullPaid != nil {
		o.setFlag(keyFullPaid, update.FullPaid)
	}
}

// Clone returns a deep copy of the order
func (o *Order) Clone() *Order {
	c := &Order{
		ID:     o.ID,
		UserID: append(json.RawMessage(nil), o.UserID...),
		Fields: make(map[string]json.RawMessage, len(o.Fields)),
		keys:   append([]string(nil), o.keys...),
	}
	if o.Status != nil {
		s := *o.Status
		c.Status = &s
	}
	if o.DepositPaid != nil {
		b := *o.DepositPaid
		c.DepositPaid = &b
	}
	if o.FullPaid != nil {
		b := *o.FullPaid
		c.FullPaid = &b
	}
	for k, v := range o.Fields {
		c.Fields[k] = append(json.RawMessage(nil), v...)
	}
	return c
}

// BoolFlag is the JSON of a payment flag value
func BoolFlag(b bool) json.RawMessage {
	return json.RawMessage(strconv.FormatBool(b))
}

// PaymentUpdate is the payload of an updatePaymentStatus event. A flag is
// nil when its key was absent; an explicit null arrives as the JSON null.
type PaymentUpdate struct {
	OrderID     OrderID         `json:"orderId"`
	DepositPaid json.RawMessage `json:"depositPaid,omitempty"`
	FullPaid    json.RawMessage `json:"fullPaid,omitempty"`
}

// UnmarshalJSON records which flags were present, whatever their value
func (u *PaymentUpdate) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("payment update must be a JSON object")
	}

	*u = PaymentUpdate{}
	if v, ok := raw["orderId"]; ok {
		id, err := ParseOrderID(v)
		if err != nil {
			return err
		}
		u.OrderID = id
	}
	if v, ok := raw[keyDepositPaid]; ok {
		u.DepositPaid = v
	}
	if v, ok := raw[keyFullPaid]; ok {
		u.FullPaid = v
	}
	return nil
}

// PaymentStatus is broadcast after a payment update; flags the order has
// never had stay absent.
type PaymentStatus struct {
	OrderID     OrderID         `json:"orderId"`
	DepositPaid json.RawMessage `json:"depositPaid,omitempty"`
	FullPaid    json.RawMessage `json:"fullPaid,omitempty"`
}

// PaymentStatus reports the order's current flags as stored
func (o *Order) PaymentStatus() PaymentStatus {
	status := PaymentStatus{OrderID: o.ID}
	if o.has(keyDepositPaid) {
		status.DepositPaid, _ = o.value(keyDepositPaid)
	}
	if o.has(keyFullPaid) {
		status.FullPaid, _ = o.value(keyFullPaid)
	}
	return status
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
