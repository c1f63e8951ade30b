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


// Package ai provides abstractions for the AI services used during ingestion.
//
// The package defines three interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - TextRecognizer: Reads text blocks out of images (OCR)
//   - AIProvider: Aggregates AI services for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: Embeddings through OpenAI-compatible APIs
//   - ai/ocr: Text recognition through an HTTP OCR service
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, ocr.NewRecognizer)
// return interface types. Mock constructors return concrete types so tests
// can inject behavior and inspect call counts.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithOCREndpoint("http://localhost:8866/predict/ocr_system"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, []string{"Hello world"})
//	blocks, err := provider.TextRecognizer().RecognizeText(ctx, "/tmp/scan.png")
package ai
