// Package models contains the GORM persistence models of the tenant store.
// Domain types carry no ORM tags; the mappers here convert between the two.
package models
