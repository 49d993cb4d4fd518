/*
Copyright 2025 Sello Labs Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sello

import (
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sellolabs/sello/config"
	"github.com/sellolabs/sello/database"
	"github.com/sellolabs/sello/internal/chain"
	redis_db "github.com/sellolabs/sello/internal/redis-db"
)

// Sello is the main struct for the anchoring service. It owns the job queue,
// the chain client and the record datasource, and implements JobRunner so
// queued jobs execute against the same dependencies the API uses.
type Sello struct {
	queue      *QueueEngine
	chain      chain.Client
	redis      redis.UniversalClient
	datasource database.IDataSource
	clock      Clock
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewSello initializes a new instance of Sello with the provided datasource.
// It fetches the configuration and wires the Redis client, chain gateway
// client and job queue.
func NewSello(db database.IDataSource) (*Sello, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}

	newSello := &Sello{
		chain:      chain.NewGatewayClient(configuration),
		redis:      redisClient.Client(),
		datasource: db,
		clock:      NewRealClock(),
	}
	newSello.queue = NewQueueEngine(configuration, newSello.clock, newSello)
	return newSello, nil
}

// Queue exposes the engine for lifecycle control and stats.
func (s *Sello) Queue() *QueueEngine {
	return s.queue
}
