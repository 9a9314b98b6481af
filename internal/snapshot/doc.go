// Package snapshot defines core types shared across subsystems.
package snapshot
