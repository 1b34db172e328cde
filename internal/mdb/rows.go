package mdb

import "time"

// Rows is the lazily read result of one Lookup. It holds the client's
// exchange lock until the sentinel line has been read or Close is called.
//
//	rows, err := client.Lookup(ctx, key)
//	if err != nil { ... }
//	defer rows.Close()
//	for rows.Next() {
//		use(rows.Text())
//	}
//	if err := rows.Err(); err != nil { ... }
type Rows struct {
	c    *Client
	stop func() bool

	// first is the row Lookup read ahead; primed until Next consumes it.
	first  string
	primed bool

	row   string
	count int
	err   error
	done  bool
}

// Next advances to the next row. It returns false at the end of the
// result set or on error.
func (r *Rows) Next() bool {
	if r.done {
		return false
	}

	var (
		row string
		err error
	)
	if r.primed {
		row, r.primed = r.first, false
	} else {
		row, err = r.c.readRow()
	}
	if err != nil {
		r.err = err
		r.finish(err)
		return false
	}
	if row == "" {
		r.finish(nil)
		return false
	}

	r.row = row
	r.count++
	return true
}

// Text returns the current row without its line terminator.
func (r *Rows) Text() string {
	return r.row
}

// Count is the number of rows read so far.
func (r *Rows) Count() int {
	return r.count
}

// Err returns the error that ended iteration early, if any.
func (r *Rows) Err() error {
	return r.err
}

// Close discards any unread rows so the stream stays paired for the next
// exchange, then releases the client. It is safe to call more than once.
func (r *Rows) Close() error {
	for r.Next() {
	}
	return r.err
}

// finish ends the exchange and unlocks the client exactly once.
func (r *Rows) finish(err error) {
	if r.done {
		return
	}
	r.done = true
	c := r.c

	cancelled := r.stop != nil && !r.stop()
	switch {
	case err != nil:
		c.breakConn(err)
	case cancelled:
		// The context fired after the sentinel arrived; the deadline it
		// set may still land on the connection.
		c.breakConn(errExchangeCancelled)
	case c.conn != nil:
		c.conn.SetDeadline(time.Time{})
	}
	c.mu.Unlock()
}
