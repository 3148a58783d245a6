package mysql

import _ "embed"

//go:embed schema.sql
var schemaSQL string

const upsertPendingSQL = `
INSERT INTO pending_payments
  (order_id, receipt, booking_code, amount, currency, guest, booking, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  receipt      = VALUES(receipt),
  booking_code = VALUES(booking_code),
  amount       = VALUES(amount),
  currency     = VALUES(currency),
  guest        = VALUES(guest),
  booking      = VALUES(booking)
`

// Attempts for the same order overwrite each other; the latest outcome wins.
const upsertBookingSQL = `
INSERT INTO booking_history
  (order_id, payment_id, booking_code, amount, currency, status, confirmation_no, message, response, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  payment_id      = VALUES(payment_id),
  status          = VALUES(status),
  confirmation_no = VALUES(confirmation_no),
  message         = VALUES(message),
  response        = VALUES(response)
`

const deletePendingSQL = `DELETE FROM pending_payments WHERE order_id = ?`

// The state guard makes the claim a compare-and-swap: of two concurrent
// callers only one sees a changed row.
const claimPendingSQL = `
UPDATE pending_payments
SET state = 'booking', claimed_at = ?
WHERE order_id = ? AND state = 'pending'
`

const releasePendingSQL = `
UPDATE pending_payments
SET state = 'pending', claimed_at = NULL
WHERE order_id = ? AND state = 'booking'
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

// JSON columns come back as text; NULLs are folded to '' and cleared in the repo.
const getPendingSQL = `
SELECT
  order_id,
  receipt,
  booking_code,
  amount,
  currency,
  COALESCE(CAST(guest AS CHAR), '')   AS guest,
  COALESCE(CAST(booking AS CHAR), '') AS booking,
  state,
  created_at
FROM pending_payments
WHERE order_id = ?
`

const getBookingSQL = `
SELECT
  order_id,
  payment_id,
  booking_code,
  amount,
  currency,
  status,
  COALESCE(confirmation_no, '')        AS confirmation_no,
  COALESCE(message, '')                AS message,
  COALESCE(CAST(response AS CHAR), '') AS response,
  created_at
FROM booking_history
WHERE order_id = ?
`
