// Package timeparse resolves free-text time phrases ("in 10 mins", "tomorrow at 10am",
// "next friday", "2026-03-01 14:00 utc+7") into an absolute instant in one fixed zone.
//
// Parsing happens in three stages:
//   - Normalize cleans the raw text (whitespace, "in10mins" -> "in 10 mins", colloquial
//     phrases such as "tonight" rewritten into "today at 9pm").
//   - The grammar finds the first date/time expression and reports, per component,
//     whether it was stated explicitly (certain) or inferred (implied), plus whether the
//     expression carries an explicit UTC offset.
//   - Parser.Parse applies the certainty rules (date-only phrases keep the reference
//     time of day, an hour without minutes means :00) and converts into the fixed zone.
package timeparse
