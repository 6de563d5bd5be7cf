package es

import (
	"strconv"
	"strings"
)

const versionInfix = "_v"

// VersionName returns the storage name of a projection version. Version 1
// and below use the bare type name.
func VersionName(typeName string, version int) string {
	if version <= 1 {
		return typeName
	}
	return typeName + versionInfix + strconv.Itoa(version)
}

// ParseVersionName splits a storage name into its type name and version
func ParseVersionName(name string) (string, int) {
	i := strings.LastIndex(name, versionInfix)
	if i < 0 {
		return name, 1
	}
	v, err := strconv.Atoi(name[i+len(versionInfix):])
	if err != nil || v < 1 {
		return name, 1
	}
	return name[:i], v
}
