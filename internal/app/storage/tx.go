package storage

import "context"

type txKey struct{}

// WithTx stores an active registry transaction in ctx so that code invoked
// from inside the transaction (payout forwarders, callbacks) reads through it.
func WithTx(ctx context.Context, tx CauseTx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom extracts the active registry transaction from ctx, if present.
func TxFrom(ctx context.Context) (CauseTx, bool) {
	tx, ok := ctx.Value(txKey{}).(CauseTx)
	return tx, ok
}

// ReaderFor returns the transaction carried by ctx when there is one and
// fallback otherwise.
func ReaderFor(ctx context.Context, fallback CauseReader) CauseReader {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return fallback
}
