// Package testfixture lays out a small film-rental database and its script
// roots on disk for end-to-end tests.
package testfixture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Sakila is a fixture laid out under one temporary directory.
type Sakila struct {
	Dir     string
	DBPath  string
	Inserts string
	Joins   string
	Scripts string
}

// URL returns the JDBC-style URL of the fixture database.
func (s *Sakila) URL() string { return "jdbc:sqlite:" + s.DBPath }

// Roots returns the inserts and joins roots in search order.
func (s *Sakila) Roots() []string { return []string{s.Inserts, s.Joins} }

// Write adds or replaces a script under root.
func (s *Sakila) Write(t testing.TB, root, name, body string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name)+".sql")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

// Schema creates and seeds the tables. Run it as the "setup" script.
const Schema = `
CREATE TABLE film (
  film_id     INTEGER PRIMARY KEY,
  title       TEXT NOT NULL,
  team_id     INTEGER,
  module_id   INTEGER,
  rental_rate REAL
);
CREATE TABLE customer (
  customer_id INTEGER PRIMARY KEY,
  first_name  TEXT NOT NULL,
  last_name   TEXT NOT NULL
);
CREATE TABLE rental (
  rental_id   INTEGER PRIMARY KEY,
  customer_id INTEGER NOT NULL REFERENCES customer (customer_id),
  film_id     INTEGER NOT NULL REFERENCES film (film_id),
  amount      REAL
);
INSERT INTO film VALUES
  (250, 'DRAGON SQUAD', 1410, 97389, 0.99),
  (251, 'DREAM PICKUP', 1411, 97390, 2.99),
  (252, 'DRIFTER COMMANDMENTS', 1234, 97391, 4.99);
INSERT INTO customer VALUES (1, 'MARY', 'SMITH'), (2, 'PATRICIA', 'JOHNSON'), (3, 'LINDA', 'WILLIAMS');
INSERT INTO rental (customer_id, film_id, amount) VALUES
  (1, 250, 1.0), (1, 251, 2.0), (1, 252, 3.0),
  (2, 250, 1.0), (2, 251, 1.0),
  (3, 250, 5.0);
`

// TempTable copies matching films into a temporary table and reads them back.
const TempTable = `
DROP TABLE IF EXISTS temp.tmp_films;
CREATE TEMP TABLE tmp_films (film_id INTEGER, title TEXT, note TEXT, cid INTEGER);
INSERT INTO tmp_films
SELECT film_id, title, ${param("amap.abc")}, ${param("amap.cids.cid")}
FROM film
WHERE team_id IN (${param("teamIDs")})
  AND module_id IN (${param("moduleIDs")})
  AND film_id < ${param("start")} + ${param("cost")};
SELECT film_id, title, note, cid FROM tmp_films ORDER BY film_id;
`

// Select filters films by team, module and id.
const Select = `
SELECT f.film_id, f.title
FROM film f
WHERE f.film_id = ${param("filmId")}
  AND f.team_id IN (${param("teamIDs")})
  AND f.module_id IN (${param("moduleIDs")})
`

// TopCustomers ranks customers by rental count.
const TopCustomers = `
SELECT c.customer_id, c.first_name, c.last_name, COUNT(r.rental_id) AS rentals
FROM customer c
JOIN rental r ON r.customer_id = c.customer_id
WHERE c.customer_id <> ${param("customerId")} OR r.film_id = ${param("filmId")}
GROUP BY c.customer_id, c.first_name, c.last_name
HAVING COUNT(r.rental_id) >= ${param("minRentals")}
ORDER BY rentals DESC, c.customer_id
`

// VariableTest exercises template variables without any parameter.
const VariableTest = `
SELECT '${dialect}' AS dialect, COUNT(*) AS films FROM film
%{ if has("title") }WHERE title = ${param("title")}%{ endif }
`

// NewSakila writes the database location and scripts under t.TempDir():
//
//	inserts/setup.sql, inserts/temp_table_test.sql, inserts/select.sql
//	joins/top_customers.sql
//	scripts/variable_test.sql (inside joins, so it resolves as "scripts/variable_test")
//
// The database itself is created by executing "setup".
func NewSakila(t testing.TB) *Sakila {
	t.Helper()
	dir := t.TempDir()
	s := &Sakila{
		Dir:     dir,
		DBPath:  filepath.Join(dir, "sakila.db"),
		Inserts: filepath.Join(dir, "scripts", "inserts"),
		Joins:   filepath.Join(dir, "scripts", "joins"),
		Scripts: filepath.Join(dir, "scripts"),
	}
	s.Write(t, s.Inserts, "setup", Schema)
	s.Write(t, s.Inserts, "temp_table_test", TempTable)
	s.Write(t, s.Inserts, "select", Select)
	s.Write(t, s.Joins, "top_customers", TopCustomers)
	s.Write(t, s.Joins, "scripts/variable_test", VariableTest)
	return s
}
