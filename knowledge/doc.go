// Package knowledge loads curated knowledge entries and stores them with
// their embeddings.
//
// Entries come from a YAML seed file:
//
//	entries:
//	  - title: Company Remote Work Policy
//	    content: Employees can work remotely up to 3 days per week.
//	    department: HR
//	    kind: admin
//	    tags: [remote work, policy]
//
// An Importer embeds the entries concurrently, stores them in the knowledge
// repository and mirrors them to the optional external text and vector
// indexes. Entries are taken as written; nothing is split or chunked.
package knowledge
