// Package repository provides a generic persistence gateway built on Bun:
// CRUD with explicit hard or soft delete, lazy composable queries with
// eager-loaded relations, a typed include-path builder, and a navigation
// walker over relation metadata. Every store failure reaching a caller is a
// *GatewayError.
package repository
