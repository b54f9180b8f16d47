// Package models defines the core domain models for Scopewise.
//
// # Scope Models
//
// A project is broken down into scopes. Each scope is described by a user-configurable
// scope type and owns a list of item rows:
//   - ScopeType: the field registry (FieldDefinition), aggregate formulas and constants
//   - ScopeRecord: one scope with its ItemRecords, constants and computed totals
//   - ItemRecord: a row of dynamic named values (Values)
//   - CustomFunction: a small named numeric function usable inside formulas
//
// # Billing Models
//
//   - Bill: rolls up the billable totals of several scope records
//   - BillableScope: the billable view of a single scope record
//
// # Design Principles
//
// 1. **Schema lives in data**: item fields are not columns, they are entries of a
// Values map keyed by field name. The registry says how to type them.
// 2. **Plain data**: models carry no behaviour beyond typing helpers. Calculation
// lives in the calculator package, persistence in storage.
// 3. **Avoid circular references**: use ID strings instead of pointers for relationships.
package models
