package document

import "errors"

var (
	// ErrInvalidDocument wraps every validation failure returned by Validate.
	ErrInvalidDocument = errors.New("document: invalid model document")

	ErrDuplicateNode = errors.New("document: duplicate node name")
	ErrUnknownNode   = errors.New("document: unknown node")
	ErrDuplicateEdge = errors.New("document: duplicate edge")
	ErrUnknownEdge   = errors.New("document: unknown edge")

	// ErrBadValue indicates a node attribute that is neither a number nor a parameter name.
	ErrBadValue = errors.New("document: value must be a number or a parameter name")
)
