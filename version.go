package treebeard

// Version is the SDK version reported in every batch.
const Version = "0.4.2"
