package interfaces

import "context"

// Authenticator maps a credential presented at connect time to an identity.
type Authenticator interface {
	Verify(ctx context.Context, credential string) (string, error)
}
