// Package schema defines the file-based YAML schema of the prompt library.
//
// # Overview
//
// Every prompt template lives in its own YAML file below the template directory.
// The file path is derived from the template name alone, so a name maps to exactly
// one file and re-writing an unchanged document produces identical bytes.
//
// # Names
//
// A name has the form category/slug@version, where category may itself be
// hierarchical and version is a full semantic version:
//
//	fit/coding/code-review@1.2.0
//	└───┬────┘ └────┬────┘ └─┬─┘
//	 category     slug    version
//
// Every path segment matches [a-z0-9][a-z0-9._-]*.
//
// # Files
//
// The name above is stored at fit/coding/code-review@1.2.0.yaml:
//
//	---
//	name: fit/coding/code-review@1.2.0
//	description: Review a diff for correctness
//	tags:
//	  - coding
//	  - review
//	template: |-
//	  <system>
//	  You are a careful reviewer.
//	  </system>
//	  <user>
//	  {{diff}}
//	  </user>
//	origin_framework:
//	  name: CRISPE
//	  source: https://example.org/crispe
//	  concept: role prompting
//
// The version is not written as its own key; it is always taken from the name.
// The template text is opaque and carried verbatim.
//
// # Usage Examples
//
// Writing a document:
//
//	doc := &schema.Document{
//	    Name:     "fit/coding/code-review@1.2.0",
//	    Tags:     []string{"review", "coding"},
//	    Template: "<system>\n...\n</system>",
//	}
//	err := schema.WriteDocumentFile("prompts", doc)
//
// Reading it back:
//
//	doc, err := schema.ReadDocumentFile("prompts", "fit/coding/code-review@1.2.0.yaml")
//
// # Design Principles
//
//   - One document per file (merges and diffs stay local to one template)
//   - Path encodes identity (directory listings are name listings)
//   - Tags are a set: sorted and de-duplicated on normalization
//   - Deterministic encoding (re-export of unchanged data is a no-op)
package schema
