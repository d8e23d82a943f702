package repository

// vectorSQL is flipped by the sqlite_vec build when vec_distance_cosine is registered.
var vectorSQL bool

// VectorSQLEnabled reports whether nearest-neighbour ranking can run inside SQLite.
func VectorSQLEnabled() bool {
	return vectorSQL
}
