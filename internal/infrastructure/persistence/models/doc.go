// Package models contains the GORM persistence models for the stock tables.
// Domain aggregates carry no ORM tags; each model converts to and from its
// aggregate with ToDomain / FromDomain.
package models
