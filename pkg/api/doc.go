// Package api defines the public types of the redux state container: the
// Store and Action contracts, the Reduction sum type, lifecycle hooks,
// policies and their compatibility matrix, observers, errors and the
// Persistor contract.
//
// Most users import the root redux package, which re-exports everything
// here together with the store and persistor constructors.
package api
