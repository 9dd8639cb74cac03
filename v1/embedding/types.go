package embedding

import "context"

// InputType hints the model about the role of the input text.
type InputType string

const (
	InputDocument InputType = "document"
	InputQuery    InputType = "query"
	InputText     InputType = "text"
)

// Provider is the transport behind Client.
type Provider interface {
	// Create returns one embedding per text, in input order.
	Create(ctx context.Context, inputType InputType, texts ...string) ([][]float32, error)
}
