package store

var MigrateURL = migrateURL
