// Package volume holds in-memory image volumes and the codecs used to move
// them on and off disk.
//
// A Volume is the handle that the tool adapter reads input from and writes
// results into. Codecs cover MGH/MGZ (the FreeSurfer staging format), single
// file NIfTI-1 (.nii, .nii.gz), and read-only DICOM series. Geometry is kept
// as a voxel-to-RAS affine so round trips between formats preserve
// orientation.
package volume
