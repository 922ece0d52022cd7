// Package schema has shared constants and records for all parts of raking.
package schema
