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

package query

import "errors"

var (
	// ErrRegistryRequired is returned when an index registry is not provided.
	ErrRegistryRequired = errors.New("index registry required")

	// ErrLanguageModelRequired is returned when a language model is not provided.
	ErrLanguageModelRequired = errors.New("language model required")

	// ErrEmptyQuestion is returned when a question is blank.
	ErrEmptyQuestion = errors.New("question cannot be empty")

	// ErrDecompositionFailed wraps failures to split a question into sub-questions.
	ErrDecompositionFailed = errors.New("query decomposition failed")

	// ErrSubQueryRetrievalFailed wraps failures to search for one sub-question.
	ErrSubQueryRetrievalFailed = errors.New("sub-query retrieval failed")

	// ErrSynthesisFailed wraps failures of the final answer generation.
	ErrSynthesisFailed = errors.New("answer synthesis failed")
)
