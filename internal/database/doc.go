// Package database provides the data access layer for the application.
//
// # Architecture
//
//	database/
//	├── database.go      # Connection setup and migrations
//	├── users/           # Mirror of provider-issued user records
//	└── audit/           # Authentication audit events
//
// The identity provider owns accounts and credentials. The tables here hold
// only what this application learned from it, so every row can be rebuilt by
// signing in again.
//
// # Using Sub-packages
//
//	db, err := database.NewDatabase("./gatekeeper.db")
//
//	usersRepo := users.NewRepository(db.DB)
//	auditRepo := audit.NewRepository(db.DB)
//
//	user, err := usersRepo.Upsert(record)
package database
