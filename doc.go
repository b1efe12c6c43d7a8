/*
Package opsledger is the data-access core of the site operations ledger:
production, dispatch, inventory, equipment and manpower records kept in
PostgreSQL.

It provides:
  - A pool handle and a Manager that opens it once per process
  - Parameterized INSERT/UPDATE/SELECT builders with positional placeholders
  - Statement execution with typed errors and logging, metrics and tracing hooks
  - Transactions bound to a single connection with guaranteed release
  - Offset pagination running the data and count queries concurrently
  - Checksum-tracked migrations and an audit trail

Domain validation and the ledger service live in package ledger.

# Basic Usage

	cfg := opsledger.DefaultConfig("localhost", 5432, "opsledger", "app", secret)
	cfg.Logger = logger

	manager := opsledger.NewManager(nil)
	db, err := manager.Acquire(ctx, cfg)
	if err != nil {
	    log.Fatal(err)
	}
	defer manager.Shutdown()

# Building and running statements

	stmt, err := opsledger.BuildInsert("materials", opsledger.Values{}.
	    Set("material_code", "AGG-20").
	    Set("material_name", "Aggregate 20mm"), "")
	if err != nil {
	    return err
	}
	res, err := db.Exec(ctx, stmt)

The where clause passed to BuildUpdate and SelectQuery.Where is raw SQL. It
must be written by the program, never taken from a request.

# Transactions

	err := db.Transaction(ctx, func(ctx context.Context, tx *opsledger.Tx) error {
	    if _, err := tx.Exec(ctx, insert); err != nil {
	        return err // rollback, err is returned as is
	    }
	    return opsledger.Audit(ctx, tx, entry)
	})

Transactions do not nest: starting one with a context handed to a unit of
work returns ErrNestedTransaction.

# Error Handling

	if err != nil {
	    if opsledger.IsDuplicate(err) {
	        // Handle duplicate key
	    }

	    var ve *opsledger.ValidationError
	    if errors.As(err, &ve) {
	        fmt.Println(ve.Fields()) // map[quantity_tons:must not be negative]
	    }
	}
*/
package opsledger
