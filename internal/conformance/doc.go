// Package conformance checks that every query backend gives the same answers
// to the same queries.
//
// A scenario seeds each backend with identical fixtures, runs a list of read
// steps against all of them, and fails when the backends disagree or when an
// outcome misses the step's expectations. Outcomes are normalized first so
// driver-specific representations (int64 vs float64, []byte vs string) do
// not count as disagreements.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: ../schema          # CUE entity descriptors
//	fixtures:
//	  User:
//	    - {id: u1, name: Ann, age: 31}
//	steps:
//	  - name: adults
//	    entity: User
//	    query:
//	      filter: {age: {gte: 30}}
//	      sorting: [{field: age, direction: DESC}]
//	    expect:
//	      ids: [u1]
//	  - name: admins
//	    entity: User
//	    count: {admin: {is: true}}
//	    expect: {count: 1}
//	  - name: by_admin
//	    entity: User
//	    aggregate: {count: [id], groupBy: [admin]}
//	    expect:
//	      rows:
//	        - {groupBy_admin: true, count_id: 1}
//
// Aggregate rows are written flattened, with the column alias contract.
// A step may expect a query error code instead:
//
//	expect: {error: MALFORMED_BETWEEN}
//
// # Backends
//
// DefaultBackends runs the in-memory services and an in-memory SQLite
// database. The memory backend embeds related records under each relation
// name so nested filters behave like the SQL EXISTS subqueries.
//
// Null handling differs between the memory operators and SQL for the
// negated operators (neq, notIn, notLike, isNot): memory matches nulls and
// SQL does not. Scenarios keep those operators off nullable fields.
//
// # Golden Files
//
// AssertSQLGolden snapshots the SQL each step compiles to, per dialect:
//
//	conformance.AssertSQLGolden(t, scenario, querysql.Postgres)
//
// To regenerate golden files, run:
//
//	go test ./internal/conformance -update
package conformance
