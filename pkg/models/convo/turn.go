package convo

import "encoding/json"

// roles
const (
	RoleUser  = "user"
	RoleModel = "model"
)

type Part struct {
	Text string `json:"text"`
}

// Turn one message exchanged with the model
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

func NewTurn(role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

func UserTurn(text string) Turn  { return NewTurn(RoleUser, text) }
func ModelTurn(text string) Turn { return NewTurn(RoleModel, text) }

// Text joins the text of all parts
func (z Turn) Text() string {
	if len(z.Parts) == 1 {
		return z.Parts[0].Text
	}
	var s string
	for _, p := range z.Parts {
		s += p.Text
	}
	return s
}

// IsModel ...
func (z Turn) IsModel() bool {
	return z.Role == RoleModel || z.Role == "assistant"
}

type Turns []Turn

// Recent returns the last n turns, or all of them when n <= 0 or fewer exist.
// The result shares no backing array with z.
func (z Turns) Recent(n int) Turns {
	if n <= 0 || len(z) <= n {
		return append(Turns(nil), z...)
	}
	return append(Turns(nil), z[len(z)-n:]...)
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (z *Turn) MarshalBinary() (data []byte, err error) {
	data, err = json.Marshal(z)
	return
}

// UnmarshalBinary unmarshal a binary representation of itself. for redis result.Scan
func (z *Turn) UnmarshalBinary(data []byte) error {
	var t Turn
	err := json.Unmarshal(data, &t)
	if err == nil {
		*z = t
	}
	return err
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (z Turns) MarshalBinary() (data []byte, err error) {
	data, err = json.Marshal(z)
	return
}

// UnmarshalBinary unmarshal a binary representation of itself. for redis result.Scan
func (z *Turns) UnmarshalBinary(data []byte) error {
	var t Turns
	err := json.Unmarshal(data, &t)
	if err == nil {
		*z = t
	}
	return err
}
