// Package script resolves named scripts across ordered root directories,
// compiles them once (optionally caching the result until the file changes)
// and renders them into dialect-specific SQL with bound arguments.
//
// A script is an HCL native template:
//
//	SELECT f.title
//	FROM film f
//	WHERE f.film_id = ${param("filmId")}
//	%{ if has("teamIDs") }AND f.team_id IN (${param("teamIDs")})%{ endif }
//
// param(path) binds the value at a dotted path; sequences expand to one
// placeholder per element and render NULL when empty. has(path) tests
// presence. The whole tree is also visible as the variable params, and the
// dialect name as dialect. Statements are separated by semicolons.
package script
