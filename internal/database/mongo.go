package database

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// InitMongo connects the optional audit log store. It returns nil when no
// URI is configured or the server cannot be reached.
func InitMongo() *mongo.Client {
	uri := viper.GetString("mongo.uri")
	if uri == "" {
		return nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		log.Warn().Err(err).Msg("MongoDB client creation failed")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		log.Warn().Err(err).Msg("MongoDB connection failed")
		_ = client.Disconnect(context.Background())
		return nil
	}

	log.Info().Msg("MongoDB connection established")
	return client
}
