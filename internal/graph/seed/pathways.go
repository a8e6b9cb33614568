// Package seed holds curated mechanism pathway definitions for CRS, ICANS,
// and HLH/MAS, based on published cell-therapy toxicity literature. They
// are loaded into a graph.Graph at engine startup to enable mechanism
// validation and hypothesis generation out of the box.
//
// References:
//   - Lee et al., Biol Blood Marrow Transplant, 2019 (ASTCT consensus grading)
//   - Norelli et al., Nature Medicine, 2018 (monocyte-derived IL-6 in CRS)
//   - Giavridis et al., Nature Medicine, 2018 (macrophage activation in CRS)
//   - Gust et al., Cancer Discovery, 2017 (endothelial activation in ICANS)
//   - Teachey et al., Cancer Discovery, 2016 (cytokine kinetics in CRS)
package seed

import "github.com/psp-engine/psp/internal/graph"

// shared node definitions, reused across pathways.
var (
	nCarT       = graph.Node{ID: "CELL:CAR_T", Type: graph.NodeCellType, Name: "CAR-T Cell", Properties: map[string]any{"lineage": "T lymphocyte", "engineered": true}}
	nMonocyte   = graph.Node{ID: "CELL:MONOCYTE", Type: graph.NodeCellType, Name: "Monocyte", Properties: map[string]any{"lineage": "myeloid"}}
	nMacrophage = graph.Node{ID: "CELL:MACROPHAGE", Type: graph.NodeCellType, Name: "Macrophage", Properties: map[string]any{"lineage": "myeloid"}}
	nEndothel   = graph.Node{ID: "CELL:ENDOTHELIAL", Type: graph.NodeCellType, Name: "Endothelial Cell", Properties: map[string]any{"tissue": "vascular"}}
	nTumor      = graph.Node{ID: "CELL:TUMOR", Type: graph.NodeCellType, Name: "Tumor Cell (CD19+)", Properties: map[string]any{"antigen": "CD19"}}
	nNK         = graph.Node{ID: "CELL:NK", Type: graph.NodeCellType, Name: "Natural Killer Cell", Properties: map[string]any{"lineage": "innate lymphoid"}}
	nAstrocyte  = graph.Node{ID: "CELL:ASTROCYTE", Type: graph.NodeCellType, Name: "Astrocyte", Properties: map[string]any{"tissue": "CNS"}}
	nPericyte   = graph.Node{ID: "CELL:PERICYTE", Type: graph.NodeCellType, Name: "Brain Pericyte", Properties: map[string]any{"tissue": "CNS vasculature"}}
	nDendritic  = graph.Node{ID: "CELL:DENDRITIC", Type: graph.NodeCellType, Name: "Dendritic Cell", Properties: map[string]any{"lineage": "myeloid"}}

	nIL6  = graph.Node{ID: "CYTOKINE:IL6", Type: graph.NodeCytokine, Name: "Interleukin-6 (IL-6)", Properties: map[string]any{"gene": "IL6", "normal_range_pg_ml": []float64{0, 7}, "half_life_hours": 2.5}}
	nTNF  = graph.Node{ID: "CYTOKINE:TNF_ALPHA", Type: graph.NodeCytokine, Name: "Tumor Necrosis Factor-alpha (TNF-a)", Properties: map[string]any{"gene": "TNF", "normal_range_pg_ml": []float64{0, 8.1}}}
	nIFNg = graph.Node{ID: "CYTOKINE:IFN_GAMMA", Type: graph.NodeCytokine, Name: "Interferon-gamma (IFN-g)", Properties: map[string]any{"gene": "IFNG", "normal_range_pg_ml": []float64{0, 15.6}}}
	nIL1b = graph.Node{ID: "CYTOKINE:IL1_BETA", Type: graph.NodeCytokine, Name: "Interleukin-1 beta (IL-1b)", Properties: map[string]any{"gene": "IL1B", "normal_range_pg_ml": []float64{0, 5}}}
	nIL2  = graph.Node{ID: "CYTOKINE:IL2", Type: graph.NodeCytokine, Name: "Interleukin-2 (IL-2)", Properties: map[string]any{"gene": "IL2", "normal_range_pg_ml": []float64{0, 31}}}
	nIL8  = graph.Node{ID: "CYTOKINE:IL8", Type: graph.NodeCytokine, Name: "Interleukin-8 (IL-8 / CXCL8)", Properties: map[string]any{"gene": "CXCL8"}}
	nIL10 = graph.Node{ID: "CYTOKINE:IL10", Type: graph.NodeCytokine, Name: "Interleukin-10 (IL-10)", Properties: map[string]any{"gene": "IL10", "role": "anti-inflammatory"}}
	nIL15 = graph.Node{ID: "CYTOKINE:IL15", Type: graph.NodeCytokine, Name: "Interleukin-15 (IL-15)", Properties: map[string]any{"gene": "IL15"}}
	nIL18 = graph.Node{ID: "CYTOKINE:IL18", Type: graph.NodeCytokine, Name: "Interleukin-18 (IL-18)", Properties: map[string]any{"gene": "IL18"}}
	nMCP1 = graph.Node{ID: "CYTOKINE:MCP1", Type: graph.NodeCytokine, Name: "Monocyte Chemoattractant Protein-1 (MCP-1 / CCL2)", Properties: map[string]any{"gene": "CCL2"}}
	nGMCSF = graph.Node{ID: "CYTOKINE:GM_CSF", Type: graph.NodeCytokine, Name: "GM-CSF", Properties: map[string]any{"gene": "CSF2"}}

	nPerforin  = graph.Node{ID: "PROTEIN:PERFORIN", Type: graph.NodeProtein, Name: "Perforin", Properties: map[string]any{"gene": "PRF1"}}
	nGranzymeB = graph.Node{ID: "PROTEIN:GRANZYME_B", Type: graph.NodeProtein, Name: "Granzyme B", Properties: map[string]any{"gene": "GZMB"}}

	nIL6R  = graph.Node{ID: "RECEPTOR:IL6R", Type: graph.NodeReceptor, Name: "IL-6 Receptor (IL-6R / CD126)", Properties: map[string]any{"gene": "IL6R", "type": "membrane-bound"}}
	nSIL6R = graph.Node{ID: "RECEPTOR:SIL6R", Type: graph.NodeReceptor, Name: "Soluble IL-6 Receptor (sIL-6R)", Properties: map[string]any{"gene": "IL6R", "type": "soluble", "enables_trans_signaling": true}}
	nGP130 = graph.Node{ID: "RECEPTOR:GP130", Type: graph.NodeReceptor, Name: "Glycoprotein 130 (gp130)", Properties: map[string]any{"gene": "IL6ST", "role": "signal transduction"}}
	nTNFR1 = graph.Node{ID: "RECEPTOR:TNFR1", Type: graph.NodeReceptor, Name: "TNF Receptor 1 (TNFR1)", Properties: map[string]any{"gene": "TNFRSF1A"}}
	nIFNGR = graph.Node{ID: "RECEPTOR:IFNGR", Type: graph.NodeReceptor, Name: "IFN-gamma Receptor", Properties: map[string]any{"gene": "IFNGR1"}}
	nCD19  = graph.Node{ID: "RECEPTOR:CD19", Type: graph.NodeReceptor, Name: "CD19 (tumor antigen)", Properties: map[string]any{"gene": "CD19"}}

	nSTAT3 = graph.Node{ID: "PROTEIN:STAT3", Type: graph.NodeProtein, Name: "STAT3", Properties: map[string]any{"gene": "STAT3", "type": "transcription factor"}}
	nJAK1  = graph.Node{ID: "PROTEIN:JAK1", Type: graph.NodeProtein, Name: "JAK1", Properties: map[string]any{"gene": "JAK1", "type": "kinase"}}
	nJAK2  = graph.Node{ID: "PROTEIN:JAK2", Type: graph.NodeProtein, Name: "JAK2", Properties: map[string]any{"gene": "JAK2", "type": "kinase"}}
	nNFKB  = graph.Node{ID: "PROTEIN:NFKB", Type: graph.NodeProtein, Name: "NF-kB", Properties: map[string]any{"gene": "NFKB1", "type": "transcription factor"}}
	nANG2  = graph.Node{ID: "PROTEIN:ANG2", Type: graph.NodeProtein, Name: "Angiopoietin-2 (Ang-2)", Properties: map[string]any{"gene": "ANGPT2", "role": "vascular destabilizer"}}
	nVEGF  = graph.Node{ID: "PROTEIN:VEGF", Type: graph.NodeProtein, Name: "Vascular Endothelial Growth Factor (VEGF)", Properties: map[string]any{"gene": "VEGFA"}}
	nVWF   = graph.Node{ID: "PROTEIN:VWF", Type: graph.NodeProtein, Name: "Von Willebrand Factor (vWF)", Properties: map[string]any{"gene": "VWF", "role": "endothelial activation marker"}}

	nFerritin   = graph.Node{ID: "BIOMARKER:FERRITIN", Type: graph.NodeBiomarker, Name: "Ferritin", Properties: map[string]any{"normal_range_ng_ml": []float64{12, 300}, "hlh_threshold_ng_ml": 10000.0}}
	nCRP        = graph.Node{ID: "BIOMARKER:CRP", Type: graph.NodeBiomarker, Name: "C-Reactive Protein (CRP)", Properties: map[string]any{"normal_range_mg_l": []float64{0, 10}, "crs_elevation": true}}
	nDDimer     = graph.Node{ID: "BIOMARKER:D_DIMER", Type: graph.NodeBiomarker, Name: "D-dimer", Properties: map[string]any{"normal_range_mg_l": []float64{0, 0.5}, "role": "coagulopathy marker"}}
	nFibrinogen = graph.Node{ID: "BIOMARKER:FIBRINOGEN", Type: graph.NodeBiomarker, Name: "Fibrinogen", Properties: map[string]any{"normal_range_mg_dl": []float64{200, 400}}}
	nLDH        = graph.Node{ID: "BIOMARKER:LDH", Type: graph.NodeBiomarker, Name: "Lactate Dehydrogenase (LDH)", Properties: map[string]any{"normal_range_u_l": []float64{140, 280}}}
	nSCD25      = graph.Node{ID: "BIOMARKER:SCD25", Type: graph.NodeBiomarker, Name: "Soluble CD25 (sIL-2Ra)", Properties: map[string]any{"gene": "IL2RA"}}

	nIL6Gene  = graph.Node{ID: "GENE:IL6", Type: graph.NodeGene, Name: "IL6 Gene", Properties: map[string]any{"chromosome": "7p15.3"}}
	nTNFGene  = graph.Node{ID: "GENE:TNF", Type: graph.NodeGene, Name: "TNF Gene", Properties: map[string]any{"chromosome": "6p21.33"}}
	nIFNgGene = graph.Node{ID: "GENE:IFNG", Type: graph.NodeGene, Name: "IFNG Gene", Properties: map[string]any{"chromosome": "12q15"}}

	nCRSEvent   = graph.Node{ID: "AE:CRS", Type: graph.NodeAdverseEvent, Name: "Cytokine Release Syndrome (CRS)", Properties: map[string]any{"typical_onset_days": []float64{1, 7}, "grading_system": "ASTCT", "max_grade": 5}}
	nICANSEvent = graph.Node{ID: "AE:ICANS", Type: graph.NodeAdverseEvent, Name: "Immune effector Cell-Associated Neurotoxicity Syndrome (ICANS)", Properties: map[string]any{"typical_onset_days": []float64{2, 10}, "grading_system": "ASTCT", "assessment_tool": "ICE score"}}
	nHLHEvent   = graph.Node{ID: "AE:HLH", Type: graph.NodeAdverseEvent, Name: "Hemophagocytic Lymphohistiocytosis (HLH/MAS)", Properties: map[string]any{"typical_onset_days": []float64{3, 14}, "also_known_as": "Macrophage Activation Syndrome"}}

	nTocilizumab = graph.Node{ID: "DRUG:TOCILIZUMAB", Type: graph.NodeDrug, Name: "Tocilizumab (anti-IL-6R)", Properties: map[string]any{"mechanism": "IL-6R blockade", "route": "IV"}}
	nSiltuximab  = graph.Node{ID: "DRUG:SILTUXIMAB", Type: graph.NodeDrug, Name: "Siltuximab (anti-IL-6)", Properties: map[string]any{"mechanism": "IL-6 neutralization", "route": "IV"}}
	nDexa        = graph.Node{ID: "DRUG:DEXAMETHASONE", Type: graph.NodeDrug, Name: "Dexamethasone", Properties: map[string]any{"mechanism": "broad immunosuppression", "route": "IV/PO"}}
	nAnakinra    = graph.Node{ID: "DRUG:ANAKINRA", Type: graph.NodeDrug, Name: "Anakinra (IL-1Ra)", Properties: map[string]any{"mechanism": "IL-1 receptor antagonist", "route": "SC/IV"}}
	nRuxolitinib = graph.Node{ID: "DRUG:RUXOLITINIB", Type: graph.NodeDrug, Name: "Ruxolitinib (JAK1/2 inhibitor)", Properties: map[string]any{"mechanism": "JAK1/JAK2 inhibition", "route": "PO"}}

	nBrain       = graph.Node{ID: "ORGAN:BRAIN", Type: graph.NodeOrgan, Name: "Brain"}
	nLung        = graph.Node{ID: "ORGAN:LUNG", Type: graph.NodeOrgan, Name: "Lung"}
	nLiver       = graph.Node{ID: "ORGAN:LIVER", Type: graph.NodeOrgan, Name: "Liver"}
	nVasculature = graph.Node{ID: "ORGAN:VASCULATURE", Type: graph.NodeOrgan, Name: "Vasculature"}

	nFever          = graph.Node{ID: "SIGN:FEVER", Type: graph.NodeClinicalSign, Name: "Fever (>=38C)"}
	nHypotension    = graph.Node{ID: "SIGN:HYPOTENSION", Type: graph.NodeClinicalSign, Name: "Hypotension"}
	nHypoxia        = graph.Node{ID: "SIGN:HYPOXIA", Type: graph.NodeClinicalSign, Name: "Hypoxia"}
	nCerebralEdema  = graph.Node{ID: "SIGN:CEREBRAL_EDEMA", Type: graph.NodeClinicalSign, Name: "Cerebral Edema"}
	nCoagulopathy   = graph.Node{ID: "SIGN:COAGULOPATHY", Type: graph.NodeClinicalSign, Name: "Coagulopathy / DIC"}
	nEncephalopathy = graph.Node{ID: "SIGN:ENCEPHALOPATHY", Type: graph.NodeClinicalSign, Name: "Encephalopathy"}
	nAphasia        = graph.Node{ID: "SIGN:APHASIA", Type: graph.NodeClinicalSign, Name: "Aphasia"}
	nSeizure        = graph.Node{ID: "SIGN:SEIZURE", Type: graph.NodeClinicalSign, Name: "Seizure"}
)

// IL6SignalingPathway: classical + trans IL-6 signaling, the dominant
// driver of CRS (Norelli et al., 2018).
func IL6SignalingPathway() graph.PathwayDefinition {
	pathwayNode := graph.Node{
		ID: "PATHWAY:IL6_SIGNALING", Type: graph.NodePathway, Name: "IL-6 Classical & Trans-Signaling",
		Properties: map[string]any{"reference": "Norelli et al., Nature Medicine, 2018"},
	}

	nodes := []graph.Node{
		nCarT, nTumor, nMonocyte, nMacrophage, nEndothel,
		nIL6, nIFNg, nTNF, nIL1b, nMCP1,
		nIL6R, nSIL6R, nGP130,
		nJAK1, nJAK2, nSTAT3, nNFKB,
		nIL6Gene, nCRP, nFerritin,
		nCRSEvent, nFever, nHypotension,
		nTocilizumab, nSiltuximab,
		pathwayNode,
	}

	edges := []graph.Edge{
		{Source: "CELL:CAR_T", Target: "RECEPTOR:CD19", Type: graph.EdgeBinds, Weight: 0.95},
		{Source: "CELL:CAR_T", Target: "CYTOKINE:IFN_GAMMA", Type: graph.EdgeSecretes, Weight: 0.90},
		{Source: "CELL:CAR_T", Target: "CYTOKINE:TNF_ALPHA", Type: graph.EdgeSecretes, Weight: 0.85},
		{Source: "CELL:CAR_T", Target: "CYTOKINE:GM_CSF", Type: graph.EdgeSecretes, Weight: 0.80},

		{Source: "CYTOKINE:IFN_GAMMA", Target: "CELL:MONOCYTE", Type: graph.EdgeActivates, Weight: 0.90},
		{Source: "CYTOKINE:IFN_GAMMA", Target: "CELL:MACROPHAGE", Type: graph.EdgeActivates, Weight: 0.90},
		{Source: "CYTOKINE:TNF_ALPHA", Target: "CELL:MACROPHAGE", Type: graph.EdgeActivates, Weight: 0.80},

		{Source: "CELL:MONOCYTE", Target: "CYTOKINE:IL6", Type: graph.EdgeSecretes, Weight: 0.95},
		{Source: "CELL:MACROPHAGE", Target: "CYTOKINE:IL6", Type: graph.EdgeSecretes, Weight: 0.90},
		{Source: "CELL:MONOCYTE", Target: "CYTOKINE:IL1_BETA", Type: graph.EdgeSecretes, Weight: 0.85},
		{Source: "CELL:MONOCYTE", Target: "CYTOKINE:TNF_ALPHA", Type: graph.EdgeSecretes, Weight: 0.80},
		{Source: "CELL:MACROPHAGE", Target: "CYTOKINE:MCP1", Type: graph.EdgeSecretes, Weight: 0.75},

		{Source: "CYTOKINE:IL6", Target: "RECEPTOR:IL6R", Type: graph.EdgeBinds, Weight: 0.90},
		{Source: "RECEPTOR:IL6R", Target: "RECEPTOR:GP130", Type: graph.EdgeActivates, Weight: 0.95},

		{Source: "CYTOKINE:IL6", Target: "RECEPTOR:SIL6R", Type: graph.EdgeBinds, Weight: 0.85},
		{Source: "RECEPTOR:SIL6R", Target: "RECEPTOR:GP130", Type: graph.EdgeActivates, Weight: 0.90},

		{Source: "RECEPTOR:GP130", Target: "PROTEIN:JAK1", Type: graph.EdgeActivates, Weight: 0.90},
		{Source: "RECEPTOR:GP130", Target: "PROTEIN:JAK2", Type: graph.EdgeActivates, Weight: 0.85},
		{Source: "PROTEIN:JAK1", Target: "PROTEIN:STAT3", Type: graph.EdgeActivates, Weight: 0.90},
		{Source: "PROTEIN:STAT3", Target: "GENE:IL6", Type: graph.EdgeRegulates, Weight: 0.80},

		{Source: "CYTOKINE:TNF_ALPHA", Target: "RECEPTOR:TNFR1", Type: graph.EdgeBinds, Weight: 0.90},
		{Source: "RECEPTOR:TNFR1", Target: "PROTEIN:NFKB", Type: graph.EdgeActivates, Weight: 0.85},
		{Source: "PROTEIN:NFKB", Target: "GENE:IL6", Type: graph.EdgeRegulates, Weight: 0.80},
		{Source: "PROTEIN:NFKB", Target: "GENE:TNF", Type: graph.EdgeRegulates, Weight: 0.80},

		{Source: "GENE:IL6", Target: "CYTOKINE:IL6", Type: graph.EdgeTranscribes, Weight: 0.95},
		{Source: "GENE:TNF", Target: "CYTOKINE:TNF_ALPHA", Type: graph.EdgeTranscribes, Weight: 0.90},

		{Source: "CYTOKINE:IL6", Target: "CYTOKINE:IL6", Type: graph.EdgeAmplifies, Weight: 0.75},

		{Source: "CYTOKINE:IL6", Target: "BIOMARKER:CRP", Type: graph.EdgeCauses, Weight: 0.90},
		{Source: "CYTOKINE:IL6", Target: "BIOMARKER:FERRITIN", Type: graph.EdgeCauses, Weight: 0.80},

		{Source: "CYTOKINE:IL6", Target: "AE:CRS", Type: graph.EdgeTriggers, Weight: 0.90},
		{Source: "CYTOKINE:TNF_ALPHA", Target: "AE:CRS", Type: graph.EdgeTriggers, Weight: 0.75},
		{Source: "AE:CRS", Target: "SIGN:FEVER", Type: graph.EdgeManifestsAs, Weight: 0.95},
		{Source: "AE:CRS", Target: "SIGN:HYPOTENSION", Type: graph.EdgeManifestsAs, Weight: 0.70},
		{Source: "AE:CRS", Target: "SIGN:HYPOXIA", Type: graph.EdgeManifestsAs, Weight: 0.50},

		{Source: "BIOMARKER:CRP", Target: "AE:CRS", Type: graph.EdgeIndicates, Weight: 0.85},
		{Source: "BIOMARKER:FERRITIN", Target: "AE:CRS", Type: graph.EdgeIndicates, Weight: 0.75},

		{Source: "DRUG:TOCILIZUMAB", Target: "RECEPTOR:IL6R", Type: graph.EdgeTargets, Weight: 0.95},
		{Source: "DRUG:TOCILIZUMAB", Target: "AE:CRS", Type: graph.EdgeTreats, Weight: 0.85},
		{Source: "DRUG:SILTUXIMAB", Target: "CYTOKINE:IL6", Type: graph.EdgeTargets, Weight: 0.90},
		{Source: "DRUG:SILTUXIMAB", Target: "AE:CRS", Type: graph.EdgeTreats, Weight: 0.80},

		{Source: "CYTOKINE:IL6", Target: "PATHWAY:IL6_SIGNALING", Type: graph.EdgeParticipatesIn, Weight: 1.0},
		{Source: "PROTEIN:STAT3", Target: "PATHWAY:IL6_SIGNALING", Type: graph.EdgeParticipatesIn, Weight: 1.0},
		{Source: "PROTEIN:JAK1", Target: "PATHWAY:IL6_SIGNALING", Type: graph.EdgeParticipatesIn, Weight: 1.0},
	}

	return graph.PathwayDefinition{
		PathwayID:     "PATHWAY:IL6_SIGNALING",
		Name:          "IL-6 Classical & Trans-Signaling in CRS",
		Description:   "Monocyte- and macrophage-derived IL-6 drives CRS through both classical and trans signaling, activating JAK1/STAT3 and creating a positive feedback loop.",
		Nodes:         nodes,
		Edges:         edges,
		TemporalPhase: graph.PhasePeak,
		AdverseEvents: []string{"AE:CRS"},
	}
}

// EndothelialActivationPathway: endothelial activation and BBB disruption,
// the mechanistic driver of ICANS (Gust et al., 2017).
func EndothelialActivationPathway() graph.PathwayDefinition {
	pathwayNode := graph.Node{
		ID: "PATHWAY:ENDOTHELIAL_ACTIVATION", Type: graph.NodePathway, Name: "Endothelial Activation & BBB Disruption",
		Properties: map[string]any{"reference": "Gust et al., Cancer Discovery, 2017"},
	}

	nodes := []graph.Node{
		nEndothel, nAstrocyte, nPericyte,
		nIL6, nTNF, nIFNg, nIL1b,
		nANG2, nVEGF, nVWF,
		nNFKB,
		nICANSEvent, nBrain, nVasculature,
		nCerebralEdema, nEncephalopathy, nAphasia, nSeizure,
		nDexa, nTocilizumab,
		pathwayNode,
	}

	edges := []graph.Edge{
		{Source: "CYTOKINE:IL6", Target: "CELL:ENDOTHELIAL", Type: graph.EdgeActivates, Weight: 0.85},
		{Source: "CYTOKINE:TNF_ALPHA", Target: "CELL:ENDOTHELIAL", Type: graph.EdgeActivates, Weight: 0.90},
		{Source: "CYTOKINE:IFN_GAMMA", Target: "CELL:ENDOTHELIAL", Type: graph.EdgeActivates, Weight: 0.80},
		{Source: "CYTOKINE:IL1_BETA", Target: "CELL:ENDOTHELIAL", Type: graph.EdgeActivates, Weight: 0.75},

		{Source: "CELL:ENDOTHELIAL", Target: "PROTEIN:ANG2", Type: graph.EdgeSecretes, Weight: 0.90},
		{Source: "CELL:ENDOTHELIAL", Target: "PROTEIN:VWF", Type: graph.EdgeSecretes, Weight: 0.85},
		{Source: "CELL:ENDOTHELIAL", Target: "PROTEIN:VEGF", Type: graph.EdgeProduces, Weight: 0.70},

		{Source: "PROTEIN:ANG2", Target: "ORGAN:VASCULATURE", Type: graph.EdgeAffects, Weight: 0.85},
		{Source: "PROTEIN:ANG2", Target: "CELL:PERICYTE", Type: graph.EdgeInhibits, Weight: 0.75},

		{Source: "CELL:ENDOTHELIAL", Target: "ORGAN:BRAIN", Type: graph.EdgeAffects, Weight: 0.80},
		{Source: "CYTOKINE:IL6", Target: "ORGAN:BRAIN", Type: graph.EdgeAffects, Weight: 0.70},
		{Source: "CYTOKINE:TNF_ALPHA", Target: "CELL:ASTROCYTE", Type: graph.EdgeActivates, Weight: 0.75},

		{Source: "PROTEIN:ANG2", Target: "AE:ICANS", Type: graph.EdgeTriggers, Weight: 0.80},
		{Source: "CYTOKINE:IL6", Target: "AE:ICANS", Type: graph.EdgeTriggers, Weight: 0.70},
		{Source: "AE:ICANS", Target: "ORGAN:BRAIN", Type: graph.EdgeAffects, Weight: 0.95},
		{Source: "AE:ICANS", Target: "SIGN:CEREBRAL_EDEMA", Type: graph.EdgeManifestsAs, Weight: 0.40},
		{Source: "AE:ICANS", Target: "SIGN:ENCEPHALOPATHY", Type: graph.EdgeManifestsAs, Weight: 0.85},
		{Source: "AE:ICANS", Target: "SIGN:APHASIA", Type: graph.EdgeManifestsAs, Weight: 0.60},
		{Source: "AE:ICANS", Target: "SIGN:SEIZURE", Type: graph.EdgeManifestsAs, Weight: 0.25},

		{Source: "PATHWAY:IL6_SIGNALING", Target: "PATHWAY:ENDOTHELIAL_ACTIVATION", Type: graph.EdgeUpstreamOf, Weight: 0.90},

		{Source: "DRUG:DEXAMETHASONE", Target: "AE:ICANS", Type: graph.EdgeTreats, Weight: 0.80},
		{Source: "DRUG:DEXAMETHASONE", Target: "CELL:ENDOTHELIAL", Type: graph.EdgeInhibits, Weight: 0.70},

		{Source: "PROTEIN:ANG2", Target: "PATHWAY:ENDOTHELIAL_ACTIVATION", Type: graph.EdgeParticipatesIn, Weight: 1.0},
		{Source: "PROTEIN:VWF", Target: "PATHWAY:ENDOTHELIAL_ACTIVATION", Type: graph.EdgeParticipatesIn, Weight: 1.0},
	}

	return graph.PathwayDefinition{
		PathwayID:     "PATHWAY:ENDOTHELIAL_ACTIVATION",
		Name:          "Endothelial Activation & BBB Disruption (ICANS)",
		Description:   "Pro-inflammatory cytokines activate vascular endothelium, triggering Ang-2/vWF release, BBB disruption, and CNS cytokine entry, driving ICANS.",
		Nodes:         nodes,
		Edges:         edges,
		TemporalPhase: graph.PhasePeak,
		AdverseEvents: []string{"AE:ICANS"},
	}
}

// MacrophageActivationPathway: uncontrolled macrophage activation leading
// to HLH/MAS (Giavridis et al., 2018).
func MacrophageActivationPathway() graph.PathwayDefinition {
	pathwayNode := graph.Node{
		ID: "PATHWAY:MACROPHAGE_ACTIVATION", Type: graph.NodePathway, Name: "Macrophage Activation (HLH/MAS)",
		Properties: map[string]any{"reference": "Giavridis et al., Nature Medicine, 2018"},
	}

	nodes := []graph.Node{
		nCarT, nMacrophage, nNK, nDendritic,
		nIFNg, nTNF, nIL6, nIL18, nIL1b, nGMCSF,
		nPerforin, nGranzymeB,
		nFerritin, nDDimer, nFibrinogen, nLDH, nSCD25,
		nHLHEvent, nCoagulopathy, nLiver,
		nAnakinra, nRuxolitinib, nDexa,
		pathwayNode,
	}

	edges := []graph.Edge{
		{Source: "CELL:CAR_T", Target: "CYTOKINE:IFN_GAMMA", Type: graph.EdgeSecretes, Weight: 0.90},
		{Source: "CELL:NK", Target: "CYTOKINE:IFN_GAMMA", Type: graph.EdgeSecretes, Weight: 0.80},
		{Source: "CELL:CAR_T", Target: "CYTOKINE:GM_CSF", Type: graph.EdgeSecretes, Weight: 0.75},

		{Source: "CYTOKINE:IFN_GAMMA", Target: "CELL:MACROPHAGE", Type: graph.EdgeActivates, Weight: 0.95},
		{Source: "CYTOKINE:GM_CSF", Target: "CELL:MACROPHAGE", Type: graph.EdgeActivates, Weight: 0.80},

		{Source: "CELL:MACROPHAGE", Target: "CYTOKINE:IL6", Type: graph.EdgeSecretes, Weight: 0.90},
		{Source: "CELL:MACROPHAGE", Target: "CYTOKINE:TNF_ALPHA", Type: graph.EdgeSecretes, Weight: 0.85},
		{Source: "CELL:MACROPHAGE", Target: "CYTOKINE:IL1_BETA", Type: graph.EdgeSecretes, Weight: 0.85},
		{Source: "CELL:MACROPHAGE", Target: "CYTOKINE:IL18", Type: graph.EdgeSecretes, Weight: 0.80},
		{Source: "CELL:MACROPHAGE", Target: "BIOMARKER:FERRITIN", Type: graph.EdgeProduces, Weight: 0.90},

		{Source: "CELL:NK", Target: "PROTEIN:PERFORIN", Type: graph.EdgeSecretes, Weight: 0.85},
		{Source: "CELL:NK", Target: "PROTEIN:GRANZYME_B", Type: graph.EdgeSecretes, Weight: 0.85},

		{Source: "CELL:MACROPHAGE", Target: "AE:HLH", Type: graph.EdgeTriggers, Weight: 0.85},
		{Source: "CYTOKINE:IL18", Target: "AE:HLH", Type: graph.EdgeTriggers, Weight: 0.75},
		{Source: "AE:HLH", Target: "ORGAN:LIVER", Type: graph.EdgeAffects, Weight: 0.80},
		{Source: "AE:HLH", Target: "SIGN:COAGULOPATHY", Type: graph.EdgeManifestsAs, Weight: 0.85},

		{Source: "BIOMARKER:FERRITIN", Target: "AE:HLH", Type: graph.EdgeIndicates, Weight: 0.90},
		{Source: "BIOMARKER:D_DIMER", Target: "AE:HLH", Type: graph.EdgeIndicates, Weight: 0.75},
		{Source: "BIOMARKER:FIBRINOGEN", Target: "AE:HLH", Type: graph.EdgeIndicates, Weight: 0.70},
		{Source: "BIOMARKER:LDH", Target: "AE:HLH", Type: graph.EdgeIndicates, Weight: 0.70},
		{Source: "BIOMARKER:SCD25", Target: "AE:HLH", Type: graph.EdgeIndicates, Weight: 0.80},

		{Source: "CYTOKINE:IFN_GAMMA", Target: "CYTOKINE:IL18", Type: graph.EdgeAmplifies, Weight: 0.70},
		{Source: "CYTOKINE:IL18", Target: "CYTOKINE:IFN_GAMMA", Type: graph.EdgeAmplifies, Weight: 0.70},

		{Source: "DRUG:ANAKINRA", Target: "CYTOKINE:IL1_BETA", Type: graph.EdgeInhibits, Weight: 0.85},
		{Source: "DRUG:ANAKINRA", Target: "AE:HLH", Type: graph.EdgeTreats, Weight: 0.75},
		{Source: "DRUG:RUXOLITINIB", Target: "PROTEIN:JAK1", Type: graph.EdgeInhibits, Weight: 0.90},
		{Source: "DRUG:RUXOLITINIB", Target: "PROTEIN:JAK2", Type: graph.EdgeInhibits, Weight: 0.90},
		{Source: "DRUG:RUXOLITINIB", Target: "AE:HLH", Type: graph.EdgeTreats, Weight: 0.70},
		{Source: "DRUG:DEXAMETHASONE", Target: "AE:HLH", Type: graph.EdgeTreats, Weight: 0.65},

		{Source: "PATHWAY:IL6_SIGNALING", Target: "PATHWAY:MACROPHAGE_ACTIVATION", Type: graph.EdgeUpstreamOf, Weight: 0.70},

		{Source: "CELL:MACROPHAGE", Target: "PATHWAY:MACROPHAGE_ACTIVATION", Type: graph.EdgeParticipatesIn, Weight: 1.0},
		{Source: "CYTOKINE:IL18", Target: "PATHWAY:MACROPHAGE_ACTIVATION", Type: graph.EdgeParticipatesIn, Weight: 1.0},
		{Source: "BIOMARKER:FERRITIN", Target: "PATHWAY:MACROPHAGE_ACTIVATION", Type: graph.EdgeParticipatesIn, Weight: 1.0},
	}

	return graph.PathwayDefinition{
		PathwayID:     "PATHWAY:MACROPHAGE_ACTIVATION",
		Name:          "Macrophage Activation (HLH/MAS)",
		Description:   "IFN-gamma-driven uncontrolled macrophage activation leads to hemophagocytosis, extreme ferritin elevation, coagulopathy and multi-organ damage.",
		Nodes:         nodes,
		Edges:         edges,
		TemporalPhase: graph.PhasePeak,
		AdverseEvents: []string{"AE:HLH"},
	}
}

// TNFNFKBPathway: TNF-alpha / NF-kB transcriptional amplification loop.
func TNFNFKBPathway() graph.PathwayDefinition {
	pathwayNode := graph.Node{ID: "PATHWAY:TNF_NFKB", Type: graph.NodePathway, Name: "TNF-alpha / NF-kB Amplification"}

	nodes := []graph.Node{
		nMacrophage, nMonocyte, nEndothel,
		nTNF, nIL6, nIL1b, nIL8, nMCP1,
		nTNFR1, nNFKB,
		nTNFGene, nIL6Gene,
		nCRSEvent,
		pathwayNode,
	}

	edges := []graph.Edge{
		{Source: "CYTOKINE:TNF_ALPHA", Target: "RECEPTOR:TNFR1", Type: graph.EdgeBinds, Weight: 0.90},
		{Source: "RECEPTOR:TNFR1", Target: "PROTEIN:NFKB", Type: graph.EdgeActivates, Weight: 0.85},
		{Source: "PROTEIN:NFKB", Target: "GENE:TNF", Type: graph.EdgeRegulates, Weight: 0.80},
		{Source: "PROTEIN:NFKB", Target: "GENE:IL6", Type: graph.EdgeRegulates, Weight: 0.80},
		{Source: "GENE:TNF", Target: "CYTOKINE:TNF_ALPHA", Type: graph.EdgeTranscribes, Weight: 0.90},

		{Source: "PROTEIN:NFKB", Target: "CYTOKINE:IL8", Type: graph.EdgeCauses, Weight: 0.75},
		{Source: "PROTEIN:NFKB", Target: "CYTOKINE:MCP1", Type: graph.EdgeCauses, Weight: 0.75},
		{Source: "CYTOKINE:MCP1", Target: "CELL:MONOCYTE", Type: graph.EdgeActivates, Weight: 0.80},

		{Source: "PATHWAY:TNF_NFKB", Target: "AE:CRS", Type: graph.EdgeTriggers, Weight: 0.70},

		{Source: "CYTOKINE:TNF_ALPHA", Target: "PATHWAY:TNF_NFKB", Type: graph.EdgeParticipatesIn, Weight: 1.0},
		{Source: "PROTEIN:NFKB", Target: "PATHWAY:TNF_NFKB", Type: graph.EdgeParticipatesIn, Weight: 1.0},
	}

	return graph.PathwayDefinition{
		PathwayID:     "PATHWAY:TNF_NFKB",
		Name:          "TNF-alpha / NF-kB Amplification",
		Description:   "TNF-alpha binding TNFR1 activates NF-kB, which upregulates TNF, IL-6, IL-1b, IL-8, and MCP-1, a feed-forward loop that intensifies CRS.",
		Nodes:         nodes,
		Edges:         edges,
		TemporalPhase: graph.PhasePeak,
		AdverseEvents: []string{"AE:CRS"},
	}
}

// IFNGammaPathway: IFN-gamma axis, the earliest cytokine signal after
// CAR-T activation, bridging adaptive to innate immune response.
func IFNGammaPathway() graph.PathwayDefinition {
	pathwayNode := graph.Node{ID: "PATHWAY:IFN_GAMMA", Type: graph.NodePathway, Name: "IFN-gamma Axis"}

	nodes := []graph.Node{
		nCarT, nNK, nMonocyte, nMacrophage, nDendritic,
		nIFNg, nIL6, nTNF, nIL1b, nIL10, nIL15,
		nIFNGR, nSTAT3,
		nIFNgGene,
		nCRSEvent, nICANSEvent,
		pathwayNode,
	}

	edges := []graph.Edge{
		{Source: "CELL:CAR_T", Target: "CYTOKINE:IFN_GAMMA", Type: graph.EdgeSecretes, Weight: 0.95},
		{Source: "CELL:NK", Target: "CYTOKINE:IFN_GAMMA", Type: graph.EdgeSecretes, Weight: 0.80},
		{Source: "CYTOKINE:IL15", Target: "CELL:NK", Type: graph.EdgeActivates, Weight: 0.70},

		{Source: "CYTOKINE:IFN_GAMMA", Target: "RECEPTOR:IFNGR", Type: graph.EdgeBinds, Weight: 0.90},
		{Source: "RECEPTOR:IFNGR", Target: "PROTEIN:STAT3", Type: graph.EdgeActivates, Weight: 0.75},

		{Source: "CYTOKINE:IFN_GAMMA", Target: "CELL:MONOCYTE", Type: graph.EdgeActivates, Weight: 0.90},
		{Source: "CYTOKINE:IFN_GAMMA", Target: "CELL:MACROPHAGE", Type: graph.EdgeActivates, Weight: 0.90},
		{Source: "CYTOKINE:IFN_GAMMA", Target: "CELL:DENDRITIC", Type: graph.EdgeActivates, Weight: 0.75},

		{Source: "CYTOKINE:IFN_GAMMA", Target: "CYTOKINE:IL6", Type: graph.EdgeCauses, Weight: 0.80},
		{Source: "CYTOKINE:IFN_GAMMA", Target: "CYTOKINE:TNF_ALPHA", Type: graph.EdgeCauses, Weight: 0.75},
		{Source: "CYTOKINE:IL10", Target: "CYTOKINE:IFN_GAMMA", Type: graph.EdgeInhibits, Weight: 0.60},

		{Source: "PATHWAY:IFN_GAMMA", Target: "PATHWAY:IL6_SIGNALING", Type: graph.EdgeUpstreamOf, Weight: 0.90},
		{Source: "PATHWAY:IFN_GAMMA", Target: "PATHWAY:ENDOTHELIAL_ACTIVATION", Type: graph.EdgeUpstreamOf, Weight: 0.80},
		{Source: "PATHWAY:IFN_GAMMA", Target: "AE:CRS", Type: graph.EdgeTriggers, Weight: 0.75},
		{Source: "PATHWAY:IFN_GAMMA", Target: "AE:ICANS", Type: graph.EdgeTriggers, Weight: 0.65},
	}

	return graph.PathwayDefinition{
		PathwayID:     "PATHWAY:IFN_GAMMA",
		Name:          "IFN-gamma Axis",
		Description:   "IFN-gamma released by activated CAR-T and NK cells is the earliest signal bridging T-cell activation to innate myeloid activation, initiating the cytokine cascade.",
		Nodes:         nodes,
		Edges:         edges,
		TemporalPhase: graph.PhaseEarlyOnset,
		AdverseEvents: []string{"AE:CRS", "AE:ICANS"},
	}
}

// All returns every curated pathway definition, ready to be loaded into a
// graph.Graph via Graph.LoadPathway.
func All() []graph.PathwayDefinition {
	return []graph.PathwayDefinition{
		IL6SignalingPathway(),
		EndothelialActivationPathway(),
		MacrophageActivationPathway(),
		TNFNFKBPathway(),
		IFNGammaPathway(),
	}
}

// ByID looks up a single pathway definition by its PathwayID.
func ByID(id string) (graph.PathwayDefinition, bool) {
	for _, p := range All() {
		if p.PathwayID == id {
			return p, true
		}
	}
	return graph.PathwayDefinition{}, false
}
