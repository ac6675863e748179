// Package ownership infers calling conventions and per-variable ownership.
//
// Three analyses live here:
//
//   - InferSignatures: a module-wide monotone fixpoint deciding, for every
//     reference-typed parameter, whether the callee borrows it or takes it
//     owned. Parameters start Borrowed and are promoted when the body needs
//     its own count (returning it, storing it, passing it to an owned
//     position, projecting a reference out of it).
//   - Derive: a single forward pass classifying every local as Fresh, Owned,
//     BorrowedFrom(source) or BorrowedParam.
//   - IdentityMap: roots of BorrowedFrom chains and copy classes, used by
//     RC elimination to decide when two variables share a count.
//
// None of the analyses mutate the IR. Apply copies inferred signatures onto
// function parameters when the driver decides to commit them.
package ownership
