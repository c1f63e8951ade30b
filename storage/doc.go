// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package storage provides the persistence abstraction for pipeline job records.
//
// RecordRepository decouples the ingestion pipeline from the concrete store.
// Two implementations ship with docingest:
//
//   - storage/badger: embedded BadgerDB, the default for single-node use
//   - storage/sqldb: GORM over SQLite, MySQL or PostgreSQL
//
// # Keys and Indexes
//
// Every implementation enforces uniqueness of (fileLocation, fileVersion)
// and keeps an index on (status, updatedAt) so that stuck or failed jobs can
// be listed cheaply via ListByStatus.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/var/lib/docingest/records", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	repo, err := badger.NewRecordRepository(backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
