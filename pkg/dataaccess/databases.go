package dataaccess

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// MongoDB is the Mongo client. This is a connection pool.
var MongoDB *mongo.Client

const mongoDatabase = "synergy"

// ErrNotFound is returned when a requested record does not exist. It wraps
// the driver-level not-found error so callers do not need to import the
// driver to detect it.
var ErrNotFound = errors.New("record not found")
