// Package outbox queues signed payloads for the settlement layer, which
// drains it and submits contract calls.
package outbox

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/uhyunpark/perpsigner/pkg/order"
	"github.com/uhyunpark/perpsigner/pkg/trader"
)

// Kind classifies queued payloads into drain buckets.
type Kind int

const (
	KindOther Kind = iota
	KindCancel
	KindFill
)

func (k Kind) String() string {
	switch k {
	case KindCancel:
		return "cancel"
	case KindFill:
		return "fill"
	default:
		return "other"
	}
}

// Envelope is the JSON shape of every queued item.
//
//	{"type": "fill",   "fill":   {...}}
//	{"type": "cancel", "cancel": {...}}
type Envelope struct {
	Type   string               `json:"type"`
	Fill   *trader.FillPayload  `json:"fill,omitempty"`
	Cancel *order.CancelPayload `json:"cancel,omitempty"`
}

// EncodeFill wraps a fill instruction in an envelope.
func EncodeFill(f trader.FillInstruction) ([]byte, error) {
	p := f.Payload()
	return json.Marshal(Envelope{Type: KindFill.String(), Fill: &p})
}

// EncodeCancel wraps a signed cancellation in an envelope.
func EncodeCancel(c order.SignedCancellation) ([]byte, error) {
	p := order.ToCancelPayload(c)
	return json.Marshal(Envelope{Type: KindCancel.String(), Cancel: &p})
}

// Classify reads the envelope type. Anything that is not a fill or cancel
// envelope is KindOther.
func Classify(b []byte) Kind {
	if len(b) == 0 || b[0] != '{' {
		return KindOther
	}

	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return KindOther
	}

	switch env.Type {
	case "fill":
		return KindFill
	case "cancel":
		return KindCancel
	default:
		return KindOther
	}
}

// Outbox keeps three FIFO buckets and drains them in the order
// other, cancel, fill. Cancels go ahead of fills so a maker's withdrawal
// lands before a fill against the same order is submitted.
type Outbox struct {
	mu     sync.Mutex
	other  [][]byte
	cancel [][]byte
	fills  [][]byte
}

func New() *Outbox {
	return &Outbox{}
}

// PushRaw classifies and enqueues a copy of b.
func (o *Outbox) PushRaw(b []byte) Kind {
	cp := append([]byte(nil), b...)
	kind := Classify(b)

	o.mu.Lock()
	defer o.mu.Unlock()
	switch kind {
	case KindCancel:
		o.cancel = append(o.cancel, cp)
	case KindFill:
		o.fills = append(o.fills, cp)
	default:
		o.other = append(o.other, cp)
	}
	return kind
}

// PushFill enqueues a fill instruction.
func (o *Outbox) PushFill(f trader.FillInstruction) error {
	b, err := EncodeFill(f)
	if err != nil {
		return fmt.Errorf("failed to encode fill: %w", err)
	}
	o.PushRaw(b)
	return nil
}

// PushCancel enqueues a signed cancellation.
func (o *Outbox) PushCancel(c order.SignedCancellation) error {
	b, err := EncodeCancel(c)
	if err != nil {
		return fmt.Errorf("failed to encode cancellation: %w", err)
	}
	o.PushRaw(b)
	return nil
}

// Drain removes and returns up to maxBytes worth of payloads in drain order.
// maxBytes <= 0 means no limit. Draining stops at the first payload that does
// not fit, so later items never overtake earlier ones.
func (o *Outbox) Drain(maxBytes int64) [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out [][]byte
	var used int64
	full := false

	pull := func(q *[][]byte) {
		for !full && len(*q) > 0 {
			item := (*q)[0]
			n := int64(len(item))
			if maxBytes > 0 && used+n > maxBytes {
				full = true
				return
			}
			out = append(out, item)
			used += n
			*q = (*q)[1:]
		}
	}

	pull(&o.other)
	pull(&o.cancel)
	pull(&o.fills)

	return out
}

// Len returns the total number of pending payloads.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.other) + len(o.cancel) + len(o.fills)
}

// Counts returns pending payloads per kind.
func (o *Outbox) Counts() map[Kind]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return map[Kind]int{
		KindOther:  len(o.other),
		KindCancel: len(o.cancel),
		KindFill:   len(o.fills),
	}
}
