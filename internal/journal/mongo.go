// Package journal mirrors audit entries into MongoDB for operational
// queries. The SQL audit table stays the system of record; the mirror is
// best-effort and optional.
package journal

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailgate/entity"
	"mailgate/internal/config"
)

const collectionAudit = "audit"

type Mongo struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
}

// NewMongoClient returns nil when the mirror is disabled; SaveAuditEntry is
// safe on a nil receiver.
func NewMongoClient(conf *config.Config) *Mongo {
	if !conf.Mongo.Enabled {
		return nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	return &Mongo{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
}

func (m *Mongo) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	return connection, nil
}

func (m *Mongo) disconnect(connection *mongo.Client) {
	_ = connection.Disconnect(m.ctx)
}

func (m *Mongo) SaveAuditEntry(e *entity.AuditEntry) error {
	if m == nil {
		return nil
	}
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionAudit)
	_, err = collection.InsertOne(m.ctx, e)
	return err
}
