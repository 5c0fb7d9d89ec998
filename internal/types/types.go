// README: Common identifier type used across modules.
package types

type ID string
