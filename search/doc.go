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


// Package search provides the hybrid relevance scorer used to rank chunks.
//
// When both the query and the chunk carry embeddings, the score blends
// cosine similarity with normalized keyword overlap:
//
//	score = 0.7*cosine + 0.3*overlap
//
// When either embedding is missing, the scorer falls back to a raw count of
// query-term occurrences in the chunk text. Fallback scores are unbounded and
// are only comparable between chunks scored for the same query.
package search
