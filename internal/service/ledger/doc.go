// Package ledger implements the cashback money ledger.
//
// The service layer is the single writer of truth for balance movement:
// every Accumulate, Redeem and Expire appends an immutable transaction
// record and updates the running balance in one atomic unit. No other
// component may write a balance row.
//
// Repository implementations live in repository/postgres/ and must
// serialize concurrent mutations of the same (client, program) balance.
package ledger
