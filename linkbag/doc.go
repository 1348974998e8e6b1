/*
Package linkbag implements a transactional bag of links from one record to others.

A bag is a multiset of primary keys, each with a capped multiplicity and a secondary key. An
embedded bag keeps all of its members in memory and is serialized with its owning record. A
tree-backed bag keeps its committed members in a persisted tree, read at a snapshot through a
Reader, and holds only the changes made by the current transaction.

Members added under a temporary key are held as new entries until the transaction commits and
the key is rebound to its persistent identity.
*/
package linkbag
