// Package database provides connection management for mysql, postgres and
// sqlite through Bun, configuration loading, table bootstrap for registered
// models, query hooks, SQL error classification and the logging facade used
// by the repository gateway.
package database
