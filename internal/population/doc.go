// Package population holds the simulant table shared by every component.
//
// A Table is a fixed set of simulants with named, typed columns. Columns
// are created exactly once by the component that owns them; reading a
// column that does not exist is an error, which is how missing component
// dependencies surface.
package population
