package client

import "context"

// NextPage inspects a decoded page and returns the descriptor for the
// following page, or ok=false once pagination is exhausted.
type NextPage func(page any) (next Descriptor, ok bool)

// Walk follows a caller-supplied "next page" extractor starting from
// first, invoking onPage for each decoded page in order. It stops at
// the first error, the first onPage false return, or exhaustion.
func (c *Client) Walk(ctx context.Context, first Descriptor, next NextPage, onPage func(page any) (bool, error)) error {
	desc := first
	for {
		page, err := c.Execute(ctx, desc)
		if err != nil {
			return err
		}
		cont, err := onPage(page)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
		nextDesc, ok := next(page)
		if !ok {
			return nil
		}
		desc = nextDesc

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
