// Package textutil provides name cleanup for paths written to controller
// SD cards, which are usually FAT formatted.
package textutil
