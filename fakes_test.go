package reqdb

import (
	"context"
	"sync"
	"sync/atomic"
)

type fakeExec struct {
	id int
}

type fakeConn struct {
	exec     *fakeExec
	err      error
	releases atomic.Int32
}

func (c *fakeConn) Executor() *fakeExec { return c.exec }

func (c *fakeConn) Release() error {
	c.releases.Add(1)
	return c.err
}

type fakeTx struct {
	exec        *fakeExec
	commitErr   error
	rollbackErr error

	commits   atomic.Int32
	rollbacks atomic.Int32

	// finalizeCtxErr is ctx.Err() as seen by Commit or Rollback.
	finalizeCtxErr error
	onCommit       func()
}

func (t *fakeTx) Executor() *fakeExec { return t.exec }

func (t *fakeTx) Commit(ctx context.Context) error {
	t.commits.Add(1)
	t.finalizeCtxErr = ctx.Err()
	if t.onCommit != nil {
		t.onCommit()
	}
	return t.commitErr
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rollbacks.Add(1)
	t.finalizeCtxErr = ctx.Err()
	return t.rollbackErr
}

type fakePool struct {
	mu   sync.Mutex
	next int

	acquireErr  error
	beginErr    error
	commitErr   error
	rollbackErr error
	releaseErr  error
	onCommit    func()

	conns []*fakeConn
	txs   []*fakeTx
}

func (p *fakePool) Acquire(ctx context.Context) (Conn[*fakeExec], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.acquireErr != nil {
		return nil, p.acquireErr
	}

	p.next++
	c := &fakeConn{exec: &fakeExec{id: p.next}, err: p.releaseErr}
	p.conns = append(p.conns, c)
	return c, nil
}

func (p *fakePool) Begin(ctx context.Context) (Tx[*fakeExec], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.beginErr != nil {
		return nil, p.beginErr
	}

	p.next++
	t := &fakeTx{
		exec:        &fakeExec{id: p.next},
		commitErr:   p.commitErr,
		rollbackErr: p.rollbackErr,
		onCommit:    p.onCommit,
	}
	p.txs = append(p.txs, t)
	return t, nil
}

func (p *fakePool) acquisitions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns) + len(p.txs)
}

func (p *fakePool) lastTx() *fakeTx {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.txs) == 0 {
		return nil
	}
	return p.txs[len(p.txs)-1]
}

func (p *fakePool) lastConn() *fakeConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) == 0 {
		return nil
	}
	return p.conns[len(p.conns)-1]
}

var _ Pool[*fakeExec] = (*fakePool)(nil)
