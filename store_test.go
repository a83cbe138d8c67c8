package reqdb

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_PutTwiceFails(t *testing.T) {
	_, s := withScope[*fakeExec](context.Background())

	first := newConnHandle[*fakeExec](&fakeConn{exec: &fakeExec{id: 1}})
	second := newConnHandle[*fakeExec](&fakeConn{exec: &fakeExec{id: 2}})

	require.NoError(t, s.put(first))
	assert.ErrorIs(t, s.put(second), ErrInvalidState)

	got, err := s.get()
	require.NoError(t, err)
	assert.Same(t, first, got)
}

func TestScope_GetEmptyFails(t *testing.T) {
	_, s := withScope[*fakeExec](context.Background())

	_, err := s.get()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCurrent_OutsideScope(t *testing.T) {
	ctx := context.Background()

	_, err := Current[*fakeExec](ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = CurrentHandle[*fakeExec](ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Panics(t, func() { MustCurrent[*fakeExec](ctx) })

	_, err = FromRequest[*fakeExec](httptest.NewRequest("GET", "/", nil))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCurrent_ReturnsStoredExecutor(t *testing.T) {
	conn := &fakeConn{exec: &fakeExec{id: 7}}
	h := newConnHandle[*fakeExec](conn)

	ctx, err := WithHandle(context.Background(), h)
	require.NoError(t, err)

	e, err := Current[*fakeExec](ctx)
	require.NoError(t, err)
	assert.Same(t, conn.exec, e)

	got, err := CurrentHandle[*fakeExec](ctx)
	require.NoError(t, err)
	assert.Same(t, h, got)
}

func TestCurrent_KeyedByExecutorType(t *testing.T) {
	type otherExec struct{}

	h := newConnHandle[*fakeExec](&fakeConn{exec: &fakeExec{}})
	ctx, err := WithHandle(context.Background(), h)
	require.NoError(t, err)

	_, err = Current[*otherExec](ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestWithHandle_RejectsSecondHandle(t *testing.T) {
	h1 := newConnHandle[*fakeExec](&fakeConn{exec: &fakeExec{}})
	h2 := newConnHandle[*fakeExec](&fakeConn{exec: &fakeExec{}})

	ctx, err := WithHandle(context.Background(), h1)
	require.NoError(t, err)

	_, err = WithHandle(ctx, h2)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCurrent_AfterFinalize(t *testing.T) {
	h := newTxHandle[*fakeExec](&fakeTx{exec: &fakeExec{}})
	ctx, err := WithHandle(context.Background(), h)
	require.NoError(t, err)

	require.NoError(t, h.rollback(ctx))

	_, err = Current[*fakeExec](ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
}
