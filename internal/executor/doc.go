// Package executor plans and runs GraphQL operations against a schema whose
// fields carry bound resolvers.
//
// # Planning
//
// Plan turns a validated document into an ExecutionContext:
//  1. Chooses the operation, by name or by uniqueness when unnamed.
//  2. Coerces variables against the operation's variable definitions,
//     applying defaults. Every variable is checked and all failures are
//     reported together; any failure stops the request.
//  3. Binds the root selection set: fragments are inlined when their type
//     condition applies, @skip and @include are evaluated, fields sharing a
//     response name are merged, arguments are coerced and each field is
//     paired with its schema definition and resolver.
//
// Sub-selections on object types are bound eagerly. Sub-selections at
// interface and union positions are bound per concrete object type the
// first time a value of that type is completed.
//
// # Execution Model
//
// Execute walks the bound tree top-down. At each object:
//   - Fields marked schema.Field.Async run in their own goroutine.
//     Projection fields resolve inline on the walking goroutine.
//   - The object is assembled only after every field has completed (fan-in).
//   - Output key order follows the selection order, regardless of which
//     resolver finished first.
//
// Mutation root fields are the exception: they run one after another in
// document order, each fully completed before the next starts.
//
// List elements of composite type complete concurrently. Each element
// keeps its index.
//
// An optional weighted semaphore (WithMaxConcurrency) bounds resolvers
// running at the same time. It is held only while a resolver runs, never
// while waiting for children, so nested fan-out cannot deadlock.
//
// # Value Completion
//
//   - Non-Null: complete the inner type. A null result records an error at
//     the field path (unless one is already there) and propagates null to
//     the parent.
//   - List: complete each element with an index-aware path. A null element
//     for a Non-Null inner type nulls the whole list.
//   - Leaf: scalars go through schema.Type.Serialize, enums through
//     schema.SerializeEnum. A coercion failure is a field error.
//   - Abstract: the concrete type comes from schema.Type.ResolveType, a
//     schema.Typed value, or a "__typename" key in map values.
//   - Object: execute the bound sub-selection for the concrete type.
//
// # Errors and Partial Success
//
// Field errors are located (message, locations, path) and kept at most once
// per path. A Non-Null violation nulls the nearest nullable ancestor; the
// path of that ancestor is tombstoned so resolvers below it that have not
// started are skipped. Already completed siblings are unaffected. If the
// null reaches the root, data is null.
//
// Errors are sorted by the selection order of their paths so the response
// does not depend on scheduling.
//
// # Cancellation
//
// The context is checked before every resolver invocation and passed to
// the resolver. If it is done when the walk finishes, the result carries a
// single CANCELLED error and no data.
package executor
