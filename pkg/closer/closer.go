// Package closer releases the resources of the platforms, such as database
// pools, once the router is done with them.
package closer

import (
	"io"

	"go.uber.org/multierr"
)

// Stack closes what it holds in reverse order of addition.
type Stack struct {
	closers []func() error
}

func (c *Stack) AddWithError(closer func() error) {
	c.closers = append(c.closers, closer)
}

// AddIfCloser adds v when it is an io.Closer. Gateways without resources
// are ignored.
func (c *Stack) AddIfCloser(v any) {
	if closer, ok := v.(io.Closer); ok && closer != nil {
		c.closers = append(c.closers, closer.Close)
	}
}

func (c *Stack) AddWithoutError(closer func()) {
	c.closers = append(c.closers, func() error {
		closer()
		return nil
	})
}

// Close runs every closer, even after one failed, and returns their errors
// combined. The stack is empty afterwards.
func (c *Stack) Close() error {
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, c.closers[i]())
	}
	c.closers = nil
	return err
}

// CloseIfError closes the stack when err is not nil, returning err with the
// errors of the closers.
func (c *Stack) CloseIfError(err error) error {
	if err != nil {
		return multierr.Append(err, c.Close())
	}
	return nil
}
