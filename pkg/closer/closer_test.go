package closer

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type recording struct {
	name  string
	err   error
	order *[]string
}

func (r recording) Close() error {
	*r.order = append(*r.order, r.name)
	return r.err
}

func TestStack(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	var order []string
	var s Stack
	s.AddIfCloser(recording{name: "first", order: &order})
	s.AddWithoutError(func() { order = append(order, "second") })
	s.AddIfCloser(strings.NewReader("not a closer"))
	s.AddIfCloser(recording{name: "third", err: errors.New("boom"), order: &order})
	s.AddWithError(func() error { order = append(order, "fourth"); return io.ErrClosedPipe })

	err := s.Close()
	require.Equal([]string{"fourth", "third", "second", "first"}, order)
	require.Len(multierr.Errors(err), 2)
	require.ErrorIs(err, io.ErrClosedPipe)

	require.NoError(s.Close())
}

func TestCloseIfError(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	closed := 0
	var s Stack
	s.AddWithoutError(func() { closed++ })

	require.NoError(s.CloseIfError(nil))
	require.Equal(0, closed)

	failure := errors.New("failed")
	require.ErrorIs(s.CloseIfError(failure), failure)
	require.Equal(1, closed)
}
